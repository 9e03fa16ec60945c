// Package geom 为切片插件提供平面几何原语：三角形截面、闭环拼接、偏移、扫描线与区间代数。
// 纯计算，无 I/O，无并发。
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"slicepath/pkg/contract"
)

// Eps: 坐标比较容差（单位与模型一致，通常为 mm）。
const Eps = 1e-6

// CutTriangle 求三角形与水平面 z 的交线段。
// 顶点 z >= plane 视为在上方，保证共享边的两个三角形得到同一交点。
func CutTriangle(t contract.Triangle, z float64) (contract.Segment, bool) {
	var pts [2]r2.Vec
	n := 0
	for i := 0; i < 3; i++ {
		a, b := t[i], t[(i+1)%3]
		if (a.Z >= z) == (b.Z >= z) {
			continue
		}
		if n == 2 {
			break
		}
		pts[n] = edgeAt(a, b, z)
		n++
	}
	if n != 2 {
		return contract.Segment{}, false
	}
	if r2.Norm(r2.Sub(pts[0], pts[1])) < Eps {
		return contract.Segment{}, false
	}
	return contract.Segment{A: pts[0], B: pts[1]}, true
}

// edgeAt 以规范端点顺序插值，结果与边方向无关。
func edgeAt(a, b r3.Vec, z float64) r2.Vec {
	if lessVec(b, a) {
		a, b = b, a
	}
	t := (z - a.Z) / (b.Z - a.Z)
	return r2.Vec{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
}

func lessVec(a, b r3.Vec) bool {
	if a.Z != b.Z {
		return a.Z < b.Z
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

// CutLayer 截取一层所涉及的全部三角形，返回无序线段集合。
func CutLayer(tris []contract.Triangle, idx contract.TriangleIndices, z float64) []contract.Segment {
	segs := make([]contract.Segment, 0, len(idx))
	for _, ti := range idx {
		if ti < 0 || ti >= len(tris) {
			continue
		}
		if s, ok := CutTriangle(tris[ti], z); ok {
			segs = append(segs, s)
		}
	}
	return segs
}

type pointKey struct{ x, y int64 }

func keyOf(v r2.Vec) pointKey {
	return pointKey{int64(math.Round(v.X / Eps)), int64(math.Round(v.Y / Eps))}
}

// ChainLoops 将无序线段拼接为闭环；无法闭合的开链丢弃。
// 返回的环不重复首点，顶点数至少为 3。
func ChainLoops(segs []contract.Segment) contract.Polygons {
	byStart := make(map[pointKey][]int, len(segs))
	byEnd := make(map[pointKey][]int, len(segs))
	for i, s := range segs {
		byStart[keyOf(s.A)] = append(byStart[keyOf(s.A)], i)
		byEnd[keyOf(s.B)] = append(byEnd[keyOf(s.B)], i)
	}
	used := make([]bool, len(segs))
	next := func(at r2.Vec) (int, bool, bool) {
		k := keyOf(at)
		for _, j := range byStart[k] {
			if !used[j] {
				return j, false, true
			}
		}
		// 法向不一致的网格：允许反向接续
		for _, j := range byEnd[k] {
			if !used[j] {
				return j, true, true
			}
		}
		return 0, false, false
	}

	var loops contract.Polygons
	for i := range segs {
		if used[i] {
			continue
		}
		used[i] = true
		start := segs[i].A
		loop := contract.Polygon{segs[i].A}
		cur := segs[i].B
		closed := false
		for {
			if keyOf(cur) == keyOf(start) {
				closed = true
				break
			}
			loop = append(loop, cur)
			j, rev, ok := next(cur)
			if !ok {
				break
			}
			used[j] = true
			if rev {
				cur = segs[j].A
			} else {
				cur = segs[j].B
			}
		}
		if closed && len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}

// LoopSegments 将闭环还原为首尾相接的线段序列。
func LoopSegments(p contract.Polygon) []contract.Segment {
	if len(p) < 2 {
		return nil
	}
	out := make([]contract.Segment, 0, len(p))
	for i := range p {
		out = append(out, contract.Segment{A: p[i], B: p[(i+1)%len(p)]})
	}
	return out
}

// SegmentLoop 取线段序列的起点作为环顶点（LoopSegments 的逆）。
func SegmentLoop(segs []contract.Segment) contract.Polygon {
	p := make(contract.Polygon, 0, len(segs))
	for _, s := range segs {
		p = append(p, s.A)
	}
	return p
}
