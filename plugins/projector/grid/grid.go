// Package grid 将骨架中一层的网格分解投影为具体几何。
package grid

import (
	"fmt"

	"slicepath/internal/geom"
	"slicepath/pkg/contract"
)

// Options: 投影选项。
type Options struct {
	// MinInfillLength: 短于该长度的填充线丢弃；0 表示不过滤。
	MinInfillLength float64 `json:"min_infill_length"`
	// Every: 每 Every 条扫描线取一条（稀疏投影预览用），<=1 表示全部。
	Every int `json:"every"`
}

// Projector: 网格投影器（纯计算）。
type Projector struct {
	minLen float64
	every  int
}

// New 创建投影器。
func New(opts *Options) (*Projector, error) {
	p := &Projector{every: 1}
	if opts != nil {
		if opts.MinInfillLength < 0 {
			return nil, fmt.Errorf("%w: min_infill_length must be >= 0", contract.ErrInvalidInput)
		}
		p.minLen = opts.MinInfillLength
		if opts.Every > 1 {
			p.every = opts.Every
		}
	}
	return p, nil
}

var _ contract.Projector = (*Projector)(nil)

// Outlines: 每组首尾相接的线段还原为一个边界环。
func (p *Projector) Outlines(segments contract.SegmentTable) (contract.Polygons, error) {
	out := make(contract.Polygons, 0, len(segments))
	for i, segs := range segments {
		if len(segs) < 3 {
			return nil, fmt.Errorf("%w: outline %d has %d segments", contract.ErrInvariantViolation, i, len(segs))
		}
		out = append(out, geom.SegmentLoop(segs))
	}
	return out, nil
}

// Insets: 复制内缩环（骨架只读，投影结果可被下游修改）。
func (p *Projector) Insets(insets contract.Insets) ([]contract.Polygons, error) {
	out := make([]contract.Polygons, 0, len(insets))
	for _, shell := range insets {
		cp := make(contract.Polygons, 0, len(shell))
		for _, loop := range shell {
			cp = append(cp, append(contract.Polygon(nil), loop...))
		}
		out = append(out, cp)
	}
	return out, nil
}

// Infills: direction 为真取横向扫描线，否则取纵向。
func (p *Projector) Infills(ranges contract.GridRanges, g contract.Grid, direction bool) (contract.Polygons, error) {
	if len(ranges.XRays) > len(g.YValues) || len(ranges.YRays) > len(g.XValues) {
		return nil, fmt.Errorf("%w: ranges exceed grid", contract.ErrInvariantViolation)
	}
	lines := geom.RangeLines(ranges, g, direction, p.every)
	if p.minLen <= 0 {
		return lines, nil
	}
	kept := lines[:0]
	for _, l := range lines {
		if geom.PathLength(l) >= p.minLen {
			kept = append(kept, l)
		}
	}
	return kept, nil
}
