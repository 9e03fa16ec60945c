package contract

import "context"

// SlicerParams: 切片几何参数（与配置 slicer 子树一一对应）。
type SlicerParams struct {
	LayerH                    float64
	LayerW                    float64
	FirstLayerZ               float64
	TubeSpacing               float64
	Angle                     float64
	NbOfShells                int
	InsetCutoffMultiplier     float64
	InfillShrinkingMultiplier float64
	InsetDistanceMultiplier   float64
	WriteDebugFiles           bool
}

// StageParams: 分解各阶段共享的固定参数。
type StageParams struct {
	Slicer           SlicerParams
	InteractionRatio float64
	RoofLayers       int
	FloorLayers      int
	SkipLayers       int
	Progress         Progress
}

// Decomposer: 全模型逐层分解（Skeleton 的五张表）。
// 约束：
//  1. 每个阶段只消费上一阶段的产物；
//  2. 产物按层序号对齐，长度等于 Outlines 的长度；
//  3. 每阶段通过 p.Progress 汇报（Reset 一次，每层 Tick 一次）；
//  4. 同步实现，无内部并发。
type Decomposer interface {
	Outlines(ctx context.Context, modelPath string, p StageParams) (LayerMeasure, Grid, []SegmentTable, error)
	Insets(ctx context.Context, outlines []SegmentTable, p StageParams) ([]Insets, error)
	FlatSurfaces(ctx context.Context, insets []Insets, grid Grid, p StageParams) ([]GridRanges, error)
	Roofing(ctx context.Context, flats []GridRanges, grid Grid, p StageParams) ([]GridRanges, error)
	Infills(ctx context.Context, flats []GridRanges, grid Grid, roofs []GridRanges, p StageParams) (floors []GridRanges, infills []GridRanges, err error)
}

// Projector: 将骨架中一层的分解投影为具体几何（单挤出头）。
// 纯计算，不做 I/O。
type Projector interface {
	Outlines(segments SegmentTable) (Polygons, error)
	Insets(insets Insets) ([]Polygons, error)
	Infills(ranges GridRanges, grid Grid, direction bool) (Polygons, error)
}
