package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"slicepath/pkg/contract"
)

// Hatch 以 angle（弧度）方向、spacing 间距对闭环集合做平行填充线，奇偶规则裁剪。
// 相邻扫描线方向交替（蛇形），减少空走。
func Hatch(loops contract.Polygons, spacing, angle float64) contract.Polygons {
	if spacing <= 0 || len(loops) == 0 {
		return nil
	}
	origin := r2.Vec{}
	rot := r2.NewRotation(-angle, origin)
	back := r2.NewRotation(angle, origin)

	local := make(contract.Polygons, 0, len(loops))
	for _, p := range loops {
		q := make(contract.Polygon, len(p))
		for i, v := range p {
			q[i] = rot.Rotate(v)
		}
		local = append(local, q)
	}
	b, ok := Bounds(local)
	if !ok {
		return nil
	}
	var out contract.Polygons
	flip := false
	for y := math.Floor(b.Min.Y/spacing)*spacing + spacing/2; y < b.Max.Y; y += spacing {
		rs := ScanRanges(local, AlongX, y)
		if flip {
			for i := len(rs) - 1; i >= 0; i-- {
				out = append(out, contract.Polygon{back.Rotate(r2.Vec{X: rs[i].Max, Y: y}), back.Rotate(r2.Vec{X: rs[i].Min, Y: y})})
			}
		} else {
			for _, r := range rs {
				out = append(out, contract.Polygon{back.Rotate(r2.Vec{X: r.Min, Y: y}), back.Rotate(r2.Vec{X: r.Max, Y: y})})
			}
		}
		if len(rs) > 0 {
			flip = !flip
		}
	}
	return out
}

// RangeLines 将网格区间展开为填充线段。
// alongX 为真时取横线（XRays），否则取竖线（YRays）；every>1 时每 every 条取一条。
// 相邻有效线交替方向。
func RangeLines(gr contract.GridRanges, g contract.Grid, alongX bool, every int) contract.Polygons {
	if every < 1 {
		every = 1
	}
	rays, coords := gr.XRays, g.YValues
	if !alongX {
		rays, coords = gr.YRays, g.XValues
	}
	pt := func(along, c float64) r2.Vec {
		if alongX {
			return r2.Vec{X: along, Y: c}
		}
		return r2.Vec{X: c, Y: along}
	}
	var out contract.Polygons
	flip := false
	for i := 0; i < len(rays) && i < len(coords); i += every {
		rs := rays[i]
		if len(rs) == 0 {
			continue
		}
		c := coords[i]
		if flip {
			for k := len(rs) - 1; k >= 0; k-- {
				out = append(out, contract.Polygon{pt(rs[k].Max, c), pt(rs[k].Min, c)})
			}
		} else {
			for _, r := range rs {
				out = append(out, contract.Polygon{pt(r.Min, c), pt(r.Max, c)})
			}
		}
		flip = !flip
	}
	return out
}
