package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"slicepath/internal/diag"
	"slicepath/pkg/contract"
)

// GeometrySource 为 Driver 提供切片域与逐层几何。
// Driver 负责区间解析、进度计数与向量预分配；来源只关心“第 idx 层长什么样”。
type GeometrySource interface {
	// Label 为生产循环的进度标签。
	Label() string
	// Prepare 建立切片域并返回层数（运行一次）。
	Prepare(ctx context.Context, model string, progress contract.Progress) (int, error)
	// Placeholder 返回预分配时 idx 位置的初值。
	Placeholder(idx int) contract.SliceData
	// Produce 就地填充 idx 位置；按 idx 递增调用，且只对区间内的 idx 调用。
	Produce(ctx context.Context, idx int, out *contract.SliceData) error
}

// Driver: 单线程、同步的切片生产循环。
type Driver struct {
	Source   GeometrySource
	Progress contract.Progress
	Logger   *diag.Logger
}

// Produce 对 model 运行一次生产循环，结果写入 *dest。
// 约束：
//   - *dest 必须为空；
//   - 向量一次性预分配为完整层数，生产期间只按下标写入，不扩缩；
//   - 进度对全域每个下标 Tick 一次（含区间外），与选区无关。
func (d *Driver) Produce(ctx context.Context, model string, r contract.SliceRange, dest *[]contract.SliceData) error {
	if d.Source == nil || dest == nil {
		return fmt.Errorf("%w: driver needs a source and a destination", contract.ErrInvalidInput)
	}
	if len(*dest) != 0 {
		return fmt.Errorf("%w: destination holds %d slices", contract.ErrInvariantViolation, len(*dest))
	}
	progress := contract.OrNop(d.Progress)

	n, err := d.Source.Prepare(ctx, model, progress)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	first, last := ResolveRange(r, n)
	if err := CheckRange(first, last, n); err != nil {
		return err
	}
	d.Logger.Debug("driver", "range", diag.KV{
		"first": strconv.Itoa(first), "last": strconv.Itoa(last), "count": strconv.Itoa(n),
	})

	slices := make([]contract.SliceData, n)
	for i := range slices {
		slices[i] = d.Source.Placeholder(i)
	}

	progress.Reset(n, d.Source.Label())
	for i := 0; i < n; i++ {
		progress.Tick()
		if i < first || i > last {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Source.Produce(ctx, i, &slices[i]); err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
	}
	// 已生产区间的高度必须单调不减
	if err := contract.ValidateHeights(slices[first : last+1]); err != nil {
		return fmt.Errorf("produced range: %w", err)
	}
	*dest = slices
	return nil
}

// 分解阶段固定参数。
const (
	InteractionRatio = 0.95
	RoofLayers       = 3
	FloorLayers      = 3
	SkipLayers       = 1
)

// SkeletonSource: 先做全模型分解，再逐层投影。
// 高度取“已生产计数”而非绝对下标：首个生产层总是视为底层。
// 填充方向首层为 true，每生产一层翻转一次。
type SkeletonSource struct {
	decomposer contract.Decomposer
	projector  contract.Projector
	params     contract.SlicerParams

	skel      contract.Skeleton
	produced  int
	direction bool
}

func NewSkeletonSource(dec contract.Decomposer, proj contract.Projector, params contract.SlicerParams) *SkeletonSource {
	return &SkeletonSource{decomposer: dec, projector: proj, params: params}
}

func (s *SkeletonSource) Label() string { return "Path generation" }

func (s *SkeletonSource) Prepare(ctx context.Context, model string, progress contract.Progress) (int, error) {
	if s.decomposer == nil || s.projector == nil {
		return 0, fmt.Errorf("%w: skeleton flow needs decomposer and projector", contract.ErrInvalidInput)
	}
	p := contract.StageParams{
		Slicer:           s.params,
		InteractionRatio: InteractionRatio,
		RoofLayers:       RoofLayers,
		FloorLayers:      FloorLayers,
		SkipLayers:       SkipLayers,
		Progress:         progress,
	}
	var sk contract.Skeleton
	var err error
	if sk.Measure, sk.Grid, sk.Outlines, err = s.decomposer.Outlines(ctx, model, p); err != nil {
		return 0, fmt.Errorf("outlines: %w", err)
	}
	if sk.Insets, err = s.decomposer.Insets(ctx, sk.Outlines, p); err != nil {
		return 0, fmt.Errorf("insets: %w", err)
	}
	if sk.FlatSurfaces, err = s.decomposer.FlatSurfaces(ctx, sk.Insets, sk.Grid, p); err != nil {
		return 0, fmt.Errorf("flat surfaces: %w", err)
	}
	if sk.Roofings, err = s.decomposer.Roofing(ctx, sk.FlatSurfaces, sk.Grid, p); err != nil {
		return 0, fmt.Errorf("roofing: %w", err)
	}
	if sk.Floorings, sk.Infills, err = s.decomposer.Infills(ctx, sk.FlatSurfaces, sk.Grid, sk.Roofings, p); err != nil {
		return 0, fmt.Errorf("infills: %w", err)
	}
	if err := sk.Validate(); err != nil {
		return 0, err
	}
	s.skel = sk
	s.produced = 0
	s.direction = true
	return sk.SliceCount(), nil
}

func (s *SkeletonSource) Placeholder(int) contract.SliceData { return contract.SliceData{} }

func (s *SkeletonSource) Produce(_ context.Context, idx int, out *contract.SliceData) error {
	out.UpdatePosition(s.skel.Measure.SliceIndexToHeight(s.produced), idx)
	dir := s.direction
	s.produced++
	s.direction = !s.direction

	out.ExtruderSlices = make([]contract.ExtruderSlice, 1)
	es := &out.ExtruderSlices[0]
	var err error
	if es.Boundary, err = s.projector.Outlines(s.skel.Outlines[idx]); err != nil {
		return fmt.Errorf("project outlines: %w", err)
	}
	if es.InsetLoops, err = s.projector.Insets(s.skel.Insets[idx]); err != nil {
		return fmt.Errorf("project insets: %w", err)
	}
	if es.Infills, err = s.projector.Infills(s.skel.Infills[idx], s.skel.Grid, dir); err != nil {
		return fmt.Errorf("project infills: %w", err)
	}
	return nil
}

// MeshSource: 按层直接切割网格。
// 高度使用绝对下标，不重新编号。
type MeshSource struct {
	reader contract.MeshReader
	slicer contract.LayerSlicer
	params contract.SlicerParams

	mesh    *contract.Mesh
	spacing contract.LayerSpacing
}

// DirectExtruder: 直接切片路径固定使用的挤出头。
const DirectExtruder = 0

func NewMeshSource(reader contract.MeshReader, slicer contract.LayerSlicer, params contract.SlicerParams) *MeshSource {
	return &MeshSource{reader: reader, slicer: slicer, params: params}
}

func (s *MeshSource) Label() string { return "Slicing" }

// Measure 返回网格的层高映射（Prepare 之后有效）。
func (s *MeshSource) Measure() contract.LayerMeasure {
	if s.mesh == nil {
		return contract.LayerMeasure{}
	}
	return s.mesh.Measure
}

func (s *MeshSource) Prepare(ctx context.Context, model string, _ contract.Progress) (int, error) {
	if s.reader == nil || s.slicer == nil {
		return 0, fmt.Errorf("%w: direct flow needs mesh reader and slicer", contract.ErrInvalidInput)
	}
	mesh, err := s.reader.Read(ctx, model)
	if err != nil {
		return 0, fmt.Errorf("read mesh: %w", err)
	}
	if mesh == nil {
		return 0, fmt.Errorf("%w: mesh reader returned nil", contract.ErrMeshInvalid)
	}
	s.mesh = mesh
	s.spacing = contract.LayerSpacing{
		TubeSpacing:             s.params.TubeSpacing,
		ShellCount:              s.params.NbOfShells,
		CutoffLength:            s.params.InsetCutoffMultiplier * s.params.LayerW,
		InfillShrinkMultiplier:  s.params.InfillShrinkingMultiplier,
		InsetDistanceMultiplier: s.params.InsetDistanceMultiplier,
		Debug:                   s.params.WriteDebugFiles,
	}
	return len(mesh.SliceTable), nil
}

func (s *MeshSource) Placeholder(idx int) contract.SliceData {
	return contract.SliceData{Height: s.mesh.Measure.SliceIndexToHeight(idx), Index: idx}
}

func (s *MeshSource) Produce(ctx context.Context, idx int, out *contract.SliceData) error {
	job := contract.LayerJob{
		Triangles:  s.mesh.SliceTable[idx],
		SliceIndex: idx,
		ExtruderID: DirectExtruder,
		Spacing:    s.spacing,
		Angle:      float64(idx) * s.params.Angle,
	}
	return s.slicer.Slice(ctx, s.mesh, job, out)
}
