package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"slicepath/pkg/contract"
)

// Area 返回闭环的有向面积（逆时针为正）。
func Area(p contract.Polygon) float64 {
	if len(p) < 3 {
		return 0
	}
	var s float64
	for i := range p {
		s += r2.Cross(p[i], p[(i+1)%len(p)])
	}
	return s / 2
}

// Perimeter 返回闭环周长。
func Perimeter(p contract.Polygon) float64 {
	if len(p) < 2 {
		return 0
	}
	var l float64
	for i := range p {
		l += r2.Norm(r2.Sub(p[(i+1)%len(p)], p[i]))
	}
	return l
}

// PathLength 返回开链长度（不闭合）。
func PathLength(p contract.Polygon) float64 {
	var l float64
	for i := 1; i < len(p); i++ {
		l += r2.Norm(r2.Sub(p[i], p[i-1]))
	}
	return l
}

// Contains 判断点是否在闭环内（奇偶规则）。
func Contains(p contract.Polygon, v r2.Vec) bool {
	in := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[i], p[j]
		if (a.Y > v.Y) != (b.Y > v.Y) {
			x := a.X + (v.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if v.X < x {
				in = !in
			}
		}
	}
	return in
}

// Reverse 原地翻转顶点顺序。
func Reverse(p contract.Polygon) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

// Orient 按嵌套深度统一方向：偶数层（外轮廓）逆时针，奇数层（孔）顺时针。
// 原地修改并返回同一集合。
func Orient(loops contract.Polygons) contract.Polygons {
	for i, p := range loops {
		if len(p) < 3 {
			continue
		}
		depth := 0
		for j, q := range loops {
			if i != j && Contains(q, p[0]) {
				depth++
			}
		}
		ccw := Area(p) > 0
		if (depth%2 == 0) != ccw {
			Reverse(p)
		}
	}
	return loops
}

// Offset 对已定向闭环整体向左（材料内侧）偏移 d，斜接拐角。
// 偏移后方向翻转或面积塌缩的环视为消失。
func Offset(loops contract.Polygons, d float64) contract.Polygons {
	out := make(contract.Polygons, 0, len(loops))
	for _, p := range loops {
		if q, ok := offsetLoop(p, d); ok {
			out = append(out, q)
		}
	}
	return out
}

// 斜接长度上限（以 d 为单位），超出时截断。
const miterLimit = 4.0

func offsetLoop(p contract.Polygon, d float64) (contract.Polygon, bool) {
	n := len(p)
	if n < 3 {
		return nil, false
	}
	q := make(contract.Polygon, 0, n)
	for i := 0; i < n; i++ {
		prev, cur, nxt := p[(i+n-1)%n], p[i], p[(i+1)%n]
		n1, ok1 := leftNormal(r2.Sub(cur, prev))
		n2, ok2 := leftNormal(r2.Sub(nxt, cur))
		switch {
		case !ok1 && !ok2:
			continue
		case !ok1:
			n1 = n2
		case !ok2:
			n2 = n1
		}
		den := 1 + r2.Dot(n1, n2)
		if den < 1e-9 {
			continue
		}
		m := r2.Scale(d/den, r2.Add(n1, n2))
		if l := r2.Norm(m); l > miterLimit*math.Abs(d) {
			m = r2.Scale(miterLimit*math.Abs(d)/l, m)
		}
		q = append(q, r2.Add(cur, m))
	}
	if len(q) < 3 {
		return nil, false
	}
	a0, a1 := Area(p), Area(q)
	if a0 == 0 || math.Signbit(a0) != math.Signbit(a1) || math.Abs(a1) < Eps {
		return nil, false
	}
	// 外轮廓内缩后面积必须减小
	if d > 0 && a0 > 0 && a1 >= a0 {
		return nil, false
	}
	return q, true
}

func leftNormal(e r2.Vec) (r2.Vec, bool) {
	l := r2.Norm(e)
	if l < Eps {
		return r2.Vec{}, false
	}
	return r2.Vec{X: -e.Y / l, Y: e.X / l}, true
}

// Bounds 返回闭环集合的轴对齐包围盒；空集合返回零盒与 false。
func Bounds(loops contract.Polygons) (r2.Box, bool) {
	first := true
	var b r2.Box
	for _, p := range loops {
		for _, v := range p {
			if first {
				b = r2.Box{Min: v, Max: v}
				first = false
				continue
			}
			b.Min.X = math.Min(b.Min.X, v.X)
			b.Min.Y = math.Min(b.Min.Y, v.Y)
			b.Max.X = math.Max(b.Max.X, v.X)
			b.Max.Y = math.Max(b.Max.Y, v.Y)
		}
	}
	return b, !first
}

// DropShort 移除周长小于 cutoff 的闭环（cutoff <= 0 时原样返回）。
func DropShort(loops contract.Polygons, cutoff float64) contract.Polygons {
	if cutoff <= 0 {
		return loops
	}
	out := loops[:0:0]
	for _, p := range loops {
		if Perimeter(p) >= cutoff {
			out = append(out, p)
		}
	}
	return out
}

// Shells 由已定向边界生成 count 圈内缩环（由外向内）。
// 第 k 圈偏移量 = spacing/2 + k*spacing*distMul；某圈为空时停止。
func Shells(boundary contract.Polygons, count int, spacing, distMul float64) []contract.Polygons {
	var out []contract.Polygons
	for k := 0; k < count; k++ {
		d := spacing/2 + float64(k)*spacing*distMul
		shell := Offset(boundary, d)
		if len(shell) == 0 {
			break
		}
		out = append(out, shell)
	}
	return out
}
