package contract

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Polygon: 平面折线/闭合环的顶点序列（闭合环不重复首点）。
type Polygon []r2.Vec

// Polygons: 多边形集合（无序语义由使用方约定）。
type Polygons []Polygon

// ExtruderSlice: 单个挤出头在一层上的几何。
// 约束：InsetLoops 按由外向内排列；Infills 为所选填充方向的线段/折线集合。
type ExtruderSlice struct {
	Boundary   Polygons
	InsetLoops []Polygons
	Infills    Polygons
}

// SliceData: 一层切片（高度 + 序号 + 各挤出头几何）。
// 零值即“默认构造”：高度 0、序号 0、无挤出头几何。
type SliceData struct {
	Height         float64
	Index          int
	ExtruderSlices []ExtruderSlice
}

// UpdatePosition 同时替换高度与序号（二者必须一起更新）。
func (s *SliceData) UpdatePosition(height float64, index int) {
	s.Height = height
	s.Index = index
}

// LayerMeasure: 层序号与物理高度的双向映射。
// height(i) = FirstZ + i*LayerH。
type LayerMeasure struct {
	FirstZ float64
	LayerH float64
}

// SliceIndexToHeight 返回第 i 层的高度。
func (m LayerMeasure) SliceIndexToHeight(i int) float64 {
	return m.FirstZ + float64(i)*m.LayerH
}

// HeightToSliceIndex 返回不高于 z 的最近层序号；z 低于首层时返回 -1。
func (m LayerMeasure) HeightToSliceIndex(z float64) int {
	if m.LayerH <= 0 {
		return -1
	}
	// 容差吸收浮点误差，避免 z 恰为层高时落到下一格
	return int(math.Floor((z-m.FirstZ)/m.LayerH + 1e-9))
}

// SliceRange: 层序号闭区间 [First, Last]；任一端为 -1 表示取域端点。
type SliceRange struct {
	First int `json:"first" yaml:"first"`
	Last  int `json:"last" yaml:"last"`
}

// AllSlices: 全域区间（默认值）。
var AllSlices = SliceRange{First: -1, Last: -1}

// Triangle: 三维三角面片（顶点顺序保持文件原样）。
type Triangle [3]r3.Vec

// TriangleIndices: 一层所涉及的三角形下标（指向 Mesh.Triangles）。
type TriangleIndices []int

// Mesh: Mesh Reader 的产物。
// 约束：SliceTable 每个元素对应一层（下标即层序号），层高由 Measure 给出。
type Mesh struct {
	Triangles  []Triangle
	SliceTable []TriangleIndices
	Limits     r3.Box
	Measure    LayerMeasure
}

// Segment: 平面线段。
type Segment struct {
	A, B r2.Vec
}

// SegmentTable: 一层的轮廓线段表，按闭合环分组。
type SegmentTable [][]Segment

// Insets: 一层的内缩环，按壳层由外向内分组（每组为若干闭合环）。
type Insets []Polygons

// Grid: 均匀网格；XValues 为竖线 x 坐标，YValues 为横线 y 坐标（均升序）。
type Grid struct {
	XValues []float64
	YValues []float64
}

// ScalarRange: 一维闭区间 [Min, Max]。
type ScalarRange struct {
	Min float64
	Max float64
}

// GridRanges: 一层在网格上的覆盖区间。
// XRays[j] 为横线 y=YValues[j] 上沿 X 的区间；YRays[k] 为竖线 x=XValues[k] 上沿 Y 的区间。
type GridRanges struct {
	XRays [][]ScalarRange
	YRays [][]ScalarRange
}

// Skeleton: 全模型逐层分解结果（Flow A），构建一次，投影期间只读。
// 约束：五张表与 Outlines 等长，下标即层序号。
type Skeleton struct {
	Measure      LayerMeasure
	Grid         Grid
	Outlines     []SegmentTable
	Insets       []Insets
	FlatSurfaces []GridRanges
	Roofings     []GridRanges
	Floorings    []GridRanges
	Infills      []GridRanges
}

// SliceCount 返回骨架的层数（以 Outlines 为准）。
func (s *Skeleton) SliceCount() int {
	if s == nil {
		return 0
	}
	return len(s.Outlines)
}
