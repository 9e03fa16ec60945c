package contract

import "context"

// LayerSpacing: 直接切片路径的层内间距参数。
type LayerSpacing struct {
	TubeSpacing             float64
	ShellCount              int
	CutoffLength            float64
	InfillShrinkMultiplier  float64
	InsetDistanceMultiplier float64
	Debug                   bool
}

// LayerJob: 单层切片请求。
type LayerJob struct {
	Triangles  TriangleIndices
	SliceIndex int
	ExtruderID int
	Spacing    LayerSpacing
	// Angle: 填充旋转角（弧度），= SliceIndex × 每层角度增量。
	Angle float64
}

// LayerSlicer: 将一层三角形直接转为切片几何。
// 约束：
//  1. 仅就地填充 out 的 ExtruderSlices，不修改 Height/Index；
//  2. 无内部并发；
//  3. 错误直接上抛。
type LayerSlicer interface {
	Slice(ctx context.Context, mesh *Mesh, job LayerJob, out *SliceData) error
}
