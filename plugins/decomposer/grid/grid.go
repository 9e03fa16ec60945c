// Package grid 实现基于均匀网格的全模型逐层分解（Skeleton 的五张表）。
package grid

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"slicepath/internal/geom"
	"slicepath/pkg/contract"
)

// Options: 分解器选项。
type Options struct {
	// GridSpacing: 网格步长；0 表示使用切片参数中的 tube_spacing。
	GridSpacing float64 `json:"grid_spacing"`
}

// Decomposer: 网格分解器。模型读取委托给注入的 MeshReader。
type Decomposer struct {
	reader  contract.MeshReader
	spacing float64
}

// New 创建分解器。
func New(opts *Options, reader contract.MeshReader) (*Decomposer, error) {
	if reader == nil {
		return nil, fmt.Errorf("%w: mesh reader is required", contract.ErrInvalidInput)
	}
	d := &Decomposer{reader: reader}
	if opts != nil {
		if opts.GridSpacing < 0 {
			return nil, fmt.Errorf("%w: grid_spacing must be >= 0", contract.ErrInvalidInput)
		}
		d.spacing = opts.GridSpacing
	}
	return d, nil
}

var _ contract.Decomposer = (*Decomposer)(nil)

// Outlines 读取模型并逐层求截面轮廓；同时确定层高映射与网格。
func (d *Decomposer) Outlines(ctx context.Context, modelPath string, p contract.StageParams) (contract.LayerMeasure, contract.Grid, []contract.SegmentTable, error) {
	mesh, err := d.reader.Read(ctx, modelPath)
	if err != nil {
		return contract.LayerMeasure{}, contract.Grid{}, nil, err
	}
	if mesh == nil {
		return contract.LayerMeasure{}, contract.Grid{}, nil, fmt.Errorf("%w: mesh reader returned nil", contract.ErrMeshInvalid)
	}
	n := len(mesh.SliceTable)
	prog := contract.OrNop(p.Progress)
	prog.Reset(n, "outlines")
	out := make([]contract.SegmentTable, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return contract.LayerMeasure{}, contract.Grid{}, nil, err
		}
		z := mesh.Measure.SliceIndexToHeight(i)
		loops := geom.Orient(geom.ChainLoops(geom.CutLayer(mesh.Triangles, mesh.SliceTable[i], z)))
		table := make(contract.SegmentTable, 0, len(loops))
		for _, l := range loops {
			table = append(table, geom.LoopSegments(l))
		}
		out[i] = table
		prog.Tick()
	}
	step := d.spacing
	if step == 0 {
		step = p.Slicer.TubeSpacing
	}
	box := r2.Box{
		Min: r2.Vec{X: mesh.Limits.Min.X, Y: mesh.Limits.Min.Y},
		Max: r2.Vec{X: mesh.Limits.Max.X, Y: mesh.Limits.Max.Y},
	}
	g := geom.UniformGrid(box, step)
	if len(g.XValues) == 0 {
		return contract.LayerMeasure{}, contract.Grid{}, nil, fmt.Errorf("%w: grid spacing must be > 0", contract.ErrInvalidInput)
	}
	return mesh.Measure, g, out, nil
}

// Insets 逐层生成内缩壳（由外向内），周长短于截断长度的环丢弃。
func (d *Decomposer) Insets(ctx context.Context, outlines []contract.SegmentTable, p contract.StageParams) ([]contract.Insets, error) {
	prog := contract.OrNop(p.Progress)
	prog.Reset(len(outlines), "insets")
	cutoff := p.Slicer.InsetCutoffMultiplier * p.Slicer.LayerW
	out := make([]contract.Insets, len(outlines))
	for i, table := range outlines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		boundary := make(contract.Polygons, 0, len(table))
		for _, segs := range table {
			boundary = append(boundary, geom.SegmentLoop(segs))
		}
		shells := geom.Shells(boundary, p.Slicer.NbOfShells, p.Slicer.TubeSpacing, p.Slicer.InsetDistanceMultiplier)
		layer := make(contract.Insets, 0, len(shells))
		for _, s := range shells {
			if kept := geom.DropShort(s, cutoff); len(kept) > 0 {
				layer = append(layer, kept)
			}
		}
		out[i] = layer
		prog.Tick()
	}
	return out, nil
}

// FlatSurfaces 逐层求可填充区域：最内壳再内缩半个线宽（按交互系数收紧），在网格上求覆盖区间。
func (d *Decomposer) FlatSurfaces(ctx context.Context, insets []contract.Insets, g contract.Grid, p contract.StageParams) ([]contract.GridRanges, error) {
	prog := contract.OrNop(p.Progress)
	prog.Reset(len(insets), "flat surfaces")
	shrink := 0.5 * p.Slicer.TubeSpacing * p.InteractionRatio
	out := make([]contract.GridRanges, len(insets))
	for i, layer := range insets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(layer) == 0 {
			out[i] = geom.EmptyRanges(g)
		} else {
			out[i] = geom.RangesOnGrid(geom.Offset(layer[len(layer)-1], shrink), g)
		}
		prog.Tick()
	}
	return out, nil
}

// Roofing 求顶面区域：本层可填充区域中上一层不覆盖的部分，并向下延伸 RoofLayers 层。
func (d *Decomposer) Roofing(ctx context.Context, flats []contract.GridRanges, g contract.Grid, p contract.StageParams) ([]contract.GridRanges, error) {
	n := len(flats)
	prog := contract.OrNop(p.Progress)
	prog.Reset(n, "roofing")
	exposed := make([]contract.GridRanges, n)
	for i := range flats {
		if i+1 < n {
			exposed[i] = geom.GridOp(flats[i], flats[i+1], geom.Subtract)
		} else {
			exposed[i] = flats[i]
		}
	}
	out := make([]contract.GridRanges, n)
	for i := range flats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc := geom.EmptyRanges(g)
		for k := 0; k < p.RoofLayers && i+k < n; k++ {
			acc = geom.GridOp(acc, geom.GridOp(flats[i], exposed[i+k], geom.Intersect), geom.Union)
		}
		out[i] = acc
		prog.Tick()
	}
	return out, nil
}

// Infills 求底面区域（向上延伸 FloorLayers 层）与最终填充区间：
// 实心 = 顶面 ∪ 底面；稀疏部分每 SkipLayers+1 条网格线保留一条。
func (d *Decomposer) Infills(ctx context.Context, flats []contract.GridRanges, g contract.Grid, roofs []contract.GridRanges, p contract.StageParams) ([]contract.GridRanges, []contract.GridRanges, error) {
	n := len(flats)
	if len(roofs) != n {
		return nil, nil, fmt.Errorf("%w: roofing has %d layers, flats %d", contract.ErrInvariantViolation, len(roofs), n)
	}
	prog := contract.OrNop(p.Progress)
	prog.Reset(n, "infills")
	exposed := make([]contract.GridRanges, n)
	for i := range flats {
		if i > 0 {
			exposed[i] = geom.GridOp(flats[i], flats[i-1], geom.Subtract)
		} else {
			exposed[i] = flats[i]
		}
	}
	floors := make([]contract.GridRanges, n)
	infills := make([]contract.GridRanges, n)
	for i := range flats {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		floor := geom.EmptyRanges(g)
		for k := 0; k < p.FloorLayers && i-k >= 0; k++ {
			floor = geom.GridOp(floor, geom.GridOp(flats[i], exposed[i-k], geom.Intersect), geom.Union)
		}
		floors[i] = floor
		solid := geom.GridOp(roofs[i], floor, geom.Union)
		sparse := thin(geom.GridOp(flats[i], solid, geom.Subtract), p.SkipLayers+1)
		infills[i] = geom.GridOp(solid, sparse, geom.Union)
		prog.Tick()
	}
	return floors, infills, nil
}

// thin 仅保留下标为 every 整数倍的扫描线。
func thin(gr contract.GridRanges, every int) contract.GridRanges {
	if every <= 1 {
		return gr
	}
	for i := range gr.XRays {
		if i%every != 0 {
			gr.XRays[i] = nil
		}
	}
	for i := range gr.YRays {
		if i%every != 0 {
			gr.YRays[i] = nil
		}
	}
	return gr
}
