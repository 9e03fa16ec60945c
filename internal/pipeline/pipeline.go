package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slicepath/internal/diag"
	"slicepath/pkg/contract"
)

// - 单线程同步：各阶段完整结束后才进入下一阶段。
// - 向量所有权：Driver 在一次运行内独占切片向量；子阶段只拿到单个元素。
// - 首错即止：任何阶段出错立即返回，不重试。

// Flow 选择几何来源。
type Flow string

const (
	// FlowSkeleton: 全模型分解后逐层投影。
	FlowSkeleton Flow = "skeleton"
	// FlowDirect: 网格分桶后逐层直接切割。
	FlowDirect Flow = "direct"
)

// ParseFlow 空串取 skeleton。
func ParseFlow(s string) (Flow, error) {
	switch Flow(strings.TrimSpace(s)) {
	case "", FlowSkeleton:
		return FlowSkeleton, nil
	case FlowDirect:
		return FlowDirect, nil
	}
	return "", fmt.Errorf("%w: flow %q", contract.ErrInvalidInput, s)
}

// Components 聚合运行所需的协作者。
type Components struct {
	// skeleton 流程
	Decomposer contract.Decomposer
	Projector  contract.Projector
	// direct 流程
	Mesh   contract.MeshReader
	Slicer contract.LayerSlicer

	Instructions contract.InstructionWriter
	// Writer: 指令文件落点。
	Writer contract.Writer
	// Dump: 可选，调试转储目录。
	Dump contract.Writer
	// Progress: 可选；为空时退化为日志进度。
	Progress contract.Progress
}

// PlateSettings: 贴板调整（仅 direct 流程）。
// skeleton 流程的区间外占位为零值（序号 0、高度 0），且区间内高度已按生产计数锚定到平台，无法再按序号重新锚定。
type PlateSettings struct {
	Adjust bool
	Bounds PlateBounds
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Model  string
	Output contract.ArtifactID
	Flow   Flow
	Range  contract.SliceRange
	Plate  PlateSettings
	Slicer contract.SlicerParams
}

// Run 执行一次完整运行：
//
//	skeleton: Decomposer(五阶段) → Projector(逐层) → Instructions → Writer
//	direct:   MeshReader → LayerSlicer(逐层) → [AdjustToPlate] → Instructions → Writer
//
// Dump 非空时，在写指令前转储最终序列。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	progress := comp.Progress
	if progress == nil {
		progress = diag.NewProgressLog(logger, "progress")
	}

	var src GeometrySource
	var mesh *MeshSource
	switch set.Flow {
	case FlowDirect:
		mesh = NewMeshSource(comp.Mesh, comp.Slicer, set.Slicer)
		src = mesh
	default:
		src = NewSkeletonSource(comp.Decomposer, comp.Projector, set.Slicer)
	}

	var slices []contract.SliceData
	drv := &Driver{Source: src, Progress: progress, Logger: logger}
	if err := stage(logger, "driver", string(set.Flow), func() (int64, error) {
		err := drv.Produce(ctx, set.Model, set.Range, &slices)
		return int64(len(slices)), err
	}); err != nil {
		return fmt.Errorf("produce: %w", err)
	}

	if mesh != nil && set.Plate.Adjust {
		if err := stage(logger, "plate", "adjust", func() (int64, error) {
			out, err := AdjustToPlate(slices, mesh.Measure(), set.Range, set.Plate.Bounds, logger)
			if err == nil {
				slices = out
			}
			return int64(len(out)), err
		}); err != nil {
			return fmt.Errorf("plate: %w", err)
		}
	}

	if comp.Dump != nil {
		if err := stage(logger, "dump", "slices", func() (int64, error) {
			return int64(len(slices)), DumpSlices(ctx, slices, comp.Dump)
		}); err != nil {
			return fmt.Errorf("dump: %w", err)
		}
	}

	if err := stage(logger, "instructions", "write", func() (int64, error) {
		err := WriteInstructions(ctx, set.Output, set.Model, slices, comp.Instructions, comp.Writer, progress, logger)
		return int64(len(slices)), err
	}); err != nil {
		return fmt.Errorf("instructions: %w", err)
	}
	return nil
}

// stage 以 start/finish/error 事件包裹一个阶段，并累加指标。
func stage(logger *diag.Logger, comp, msg string, fn func() (int64, error)) error {
	t := logger.Start(comp, msg)
	t0 := time.Now()
	n, err := fn()
	if err != nil {
		code := diag.Classify(err)
		logger.Error(comp, string(code), err.Error(), &t0)
		diag.IncOp(comp, "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError(comp, string(code))
		}
		return err
	}
	t.Finish(msg, n)
	diag.IncOp(comp, "finish", "success")
	return nil
}

func sanity(c Components, s Settings) error {
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("%w: model path is empty", contract.ErrInvalidInput)
	}
	if strings.TrimSpace(string(s.Output)) == "" {
		return fmt.Errorf("%w: output path is empty", contract.ErrInvalidInput)
	}
	if c.Instructions == nil || c.Writer == nil {
		return fmt.Errorf("%w: missing instruction components", contract.ErrInvalidInput)
	}
	switch s.Flow {
	case FlowSkeleton:
		if c.Decomposer == nil || c.Projector == nil {
			return fmt.Errorf("%w: skeleton flow needs decomposer and projector", contract.ErrInvalidInput)
		}
	case FlowDirect:
		if c.Mesh == nil || c.Slicer == nil {
			return fmt.Errorf("%w: direct flow needs mesh reader and slicer", contract.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: flow %q", contract.ErrInvalidInput, s.Flow)
	}
	return nil
}
