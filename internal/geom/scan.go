package geom

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"slicepath/pkg/contract"
)

// Axis: 扫描线方向。
type Axis int

const (
	// AlongX: 水平线 y=c，区间沿 X。
	AlongX Axis = iota
	// AlongY: 竖直线 x=c，区间沿 Y。
	AlongY
)

// ScanRanges 求扫描线 c 与闭环集合的覆盖区间（奇偶规则），结果升序且互不相交。
func ScanRanges(loops contract.Polygons, axis Axis, c float64) []contract.ScalarRange {
	var xs []float64
	for _, p := range loops {
		n := len(p)
		for i := 0; i < n; i++ {
			a, b := p[i], p[(i+1)%n]
			if axis == AlongY {
				a, b = r2.Vec{X: a.Y, Y: a.X}, r2.Vec{X: b.Y, Y: b.X}
			}
			if (a.Y > c) == (b.Y > c) {
				continue
			}
			xs = append(xs, a.X+(c-a.Y)*(b.X-a.X)/(b.Y-a.Y))
		}
	}
	sort.Float64s(xs)
	out := make([]contract.ScalarRange, 0, len(xs)/2)
	for i := 0; i+1 < len(xs); i += 2 {
		if xs[i+1]-xs[i] > Eps {
			out = append(out, contract.ScalarRange{Min: xs[i], Max: xs[i+1]})
		}
	}
	return out
}

// RangesOnGrid 求闭环集合在网格全部扫描线上的覆盖区间。
func RangesOnGrid(loops contract.Polygons, g contract.Grid) contract.GridRanges {
	gr := contract.GridRanges{
		XRays: make([][]contract.ScalarRange, len(g.YValues)),
		YRays: make([][]contract.ScalarRange, len(g.XValues)),
	}
	for j, y := range g.YValues {
		gr.XRays[j] = ScanRanges(loops, AlongX, y)
	}
	for k, x := range g.XValues {
		gr.YRays[k] = ScanRanges(loops, AlongY, x)
	}
	return gr
}

// Union 合并两组升序区间。
func Union(a, b []contract.ScalarRange) []contract.ScalarRange {
	all := make([]contract.ScalarRange, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Min < all[j].Min })
	out := []contract.ScalarRange{all[0]}
	for _, r := range all[1:] {
		last := &out[len(out)-1]
		if r.Min <= last.Max+Eps {
			last.Max = math.Max(last.Max, r.Max)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Intersect 求两组升序互斥区间的交集。
func Intersect(a, b []contract.ScalarRange) []contract.ScalarRange {
	var out []contract.ScalarRange
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := math.Max(a[i].Min, b[j].Min)
		hi := math.Min(a[i].Max, b[j].Max)
		if hi-lo > Eps {
			out = append(out, contract.ScalarRange{Min: lo, Max: hi})
		}
		if a[i].Max < b[j].Max {
			i++
		} else {
			j++
		}
	}
	return out
}

// Subtract 求 a \ b（两组均为升序互斥区间）。
func Subtract(a, b []contract.ScalarRange) []contract.ScalarRange {
	var out []contract.ScalarRange
	j := 0
	for _, r := range a {
		cur := r
		for j < len(b) && b[j].Max <= cur.Min {
			j++
		}
		k := j
		for k < len(b) && b[k].Min < cur.Max {
			if b[k].Min-cur.Min > Eps {
				out = append(out, contract.ScalarRange{Min: cur.Min, Max: b[k].Min})
			}
			cur.Min = math.Max(cur.Min, b[k].Max)
			k++
		}
		if cur.Max-cur.Min > Eps {
			out = append(out, cur)
		}
	}
	return out
}

// GridOp 对两组网格区间逐线执行区间运算；b 的线数不足时按空处理。
func GridOp(a, b contract.GridRanges, op func(x, y []contract.ScalarRange) []contract.ScalarRange) contract.GridRanges {
	out := contract.GridRanges{
		XRays: make([][]contract.ScalarRange, len(a.XRays)),
		YRays: make([][]contract.ScalarRange, len(a.YRays)),
	}
	for i := range a.XRays {
		var other []contract.ScalarRange
		if i < len(b.XRays) {
			other = b.XRays[i]
		}
		out.XRays[i] = op(a.XRays[i], other)
	}
	for i := range a.YRays {
		var other []contract.ScalarRange
		if i < len(b.YRays) {
			other = b.YRays[i]
		}
		out.YRays[i] = op(a.YRays[i], other)
	}
	return out
}

// EmptyRanges 返回与网格等形的空区间表。
func EmptyRanges(g contract.Grid) contract.GridRanges {
	return contract.GridRanges{
		XRays: make([][]contract.ScalarRange, len(g.YValues)),
		YRays: make([][]contract.ScalarRange, len(g.XValues)),
	}
}

// UniformGrid 以 spacing 为步长覆盖包围盒（两端各留一格）。
func UniformGrid(b r2.Box, spacing float64) contract.Grid {
	if spacing <= 0 {
		return contract.Grid{}
	}
	axis := func(lo, hi float64) []float64 {
		start := math.Floor(lo/spacing) * spacing
		var vs []float64
		for v := start; v <= hi+spacing; v += spacing {
			vs = append(vs, v)
		}
		return vs
	}
	return contract.Grid{XValues: axis(b.Min.X, b.Max.X), YValues: axis(b.Min.Y, b.Max.Y)}
}
