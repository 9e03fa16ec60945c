// Package direct 实现逐层直接切片：三角形截面 → 边界 → 内缩壳 → 旋转填充。
package direct

import (
	"context"
	"fmt"

	"slicepath/internal/geom"
	"slicepath/pkg/contract"
)

// LayerPlotter: 调试几何输出（可选）。
type LayerPlotter interface {
	PlotLayer(ctx context.Context, index int, z float64, es contract.ExtruderSlice) error
}

// Options: 直接切片选项。
type Options struct {
	// InfillSpacing: 填充线间距；0 表示使用 tube_spacing。
	InfillSpacing float64 `json:"infill_spacing"`
}

// Slicer: 逐层直接切片器。
type Slicer struct {
	infillSpacing float64
	plot          LayerPlotter
}

// New 创建切片器；plot 可为 nil（调试开关打开但未配置输出时静默跳过）。
func New(opts *Options, plot LayerPlotter) (*Slicer, error) {
	s := &Slicer{plot: plot}
	if opts != nil {
		if opts.InfillSpacing < 0 {
			return nil, fmt.Errorf("%w: infill_spacing must be >= 0", contract.ErrInvalidInput)
		}
		s.infillSpacing = opts.InfillSpacing
	}
	return s, nil
}

var _ contract.LayerSlicer = (*Slicer)(nil)

// Slice 填充 out.ExtruderSlices[job.ExtruderID]，不改动高度与序号。
func (s *Slicer) Slice(ctx context.Context, mesh *contract.Mesh, job contract.LayerJob, out *contract.SliceData) error {
	if mesh == nil || out == nil {
		return contract.ErrInvalidInput
	}
	if job.ExtruderID < 0 {
		return fmt.Errorf("%w: extruder id %d", contract.ErrInvalidInput, job.ExtruderID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sp := job.Spacing
	z := mesh.Measure.SliceIndexToHeight(job.SliceIndex)

	boundary := geom.Orient(geom.ChainLoops(geom.CutLayer(mesh.Triangles, job.Triangles, z)))
	var es contract.ExtruderSlice
	es.Boundary = boundary

	for _, shell := range geom.Shells(boundary, sp.ShellCount, sp.TubeSpacing, sp.InsetDistanceMultiplier) {
		if kept := geom.DropShort(shell, sp.CutoffLength); len(kept) > 0 {
			es.InsetLoops = append(es.InsetLoops, kept)
		}
	}

	region := boundary
	if n := len(es.InsetLoops); n > 0 {
		region = es.InsetLoops[n-1]
	}
	region = geom.Offset(region, sp.InfillShrinkMultiplier*sp.TubeSpacing)
	step := s.infillSpacing
	if step == 0 {
		step = sp.TubeSpacing
	}
	es.Infills = geom.Hatch(region, step, job.Angle)

	for len(out.ExtruderSlices) <= job.ExtruderID {
		out.ExtruderSlices = append(out.ExtruderSlices, contract.ExtruderSlice{})
	}
	out.ExtruderSlices[job.ExtruderID] = es

	if sp.Debug && s.plot != nil {
		if err := s.plot.PlotLayer(ctx, job.SliceIndex, z, es); err != nil {
			return fmt.Errorf("debug plot slice %d: %w", job.SliceIndex, err)
		}
	}
	return nil
}
