package registry

import (
	"bytes"
	"encoding/json"

	"slicepath/pkg/contract"
	gplot "slicepath/plugins/debugplot/gonumplot"
	dgrid "slicepath/plugins/decomposer/grid"
	igc "slicepath/plugins/instructions/gcode"
	mstl "slicepath/plugins/mesh/stl"
	pgrid "slicepath/plugins/projector/grid"
	sdir "slicepath/plugins/slicer/direct"
	wfs "slicepath/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewMeshReader 工厂签名：原样 JSON Options + 层高映射（决定分桶）。
type NewMeshReader func(raw json.RawMessage, m contract.LayerMeasure) (contract.MeshReader, error)

// NewDecomposer 工厂签名：分解器通过注入的 MeshReader 读取模型。
type NewDecomposer func(raw json.RawMessage, reader contract.MeshReader) (contract.Decomposer, error)

// NewProjector 工厂签名。
type NewProjector func(raw json.RawMessage) (contract.Projector, error)

// NewLayerSlicer 工厂签名：plot 可为 nil。
type NewLayerSlicer func(raw json.RawMessage, plot sdir.LayerPlotter) (contract.LayerSlicer, error)

// NewInstructions 工厂签名。
type NewInstructions func(raw json.RawMessage) (contract.InstructionWriter, error)

// NewWriter 工厂签名。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewPlotter 工厂签名：渲染结果写入 out。
type NewPlotter func(raw json.RawMessage, out contract.Writer) (sdir.LayerPlotter, error)

// MeshReader 工厂注册表（显式、零反射）。
var MeshReader = map[string]NewMeshReader{
	// stl: 二进制/ASCII STL，落板并按层分桶
	"stl": func(raw json.RawMessage, m contract.LayerMeasure) (contract.MeshReader, error) {
		var opts mstl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mstl.New(&opts, m)
	},
}

// Decomposer 工厂注册表。
var Decomposer = map[string]NewDecomposer{
	// grid: 均匀网格分解
	"grid": func(raw json.RawMessage, reader contract.MeshReader) (contract.Decomposer, error) {
		var opts dgrid.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dgrid.New(&opts, reader)
	},
}

// Projector 工厂注册表。
var Projector = map[string]NewProjector{
	"grid": func(raw json.RawMessage) (contract.Projector, error) {
		var opts pgrid.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pgrid.New(&opts)
	},
}

// LayerSlicer 工厂注册表。
var LayerSlicer = map[string]NewLayerSlicer{
	// direct: 截面 → 内缩壳 → 旋转填充
	"direct": func(raw json.RawMessage, plot sdir.LayerPlotter) (contract.LayerSlicer, error) {
		var opts sdir.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sdir.New(&opts, plot)
	},
}

// Instructions 工厂注册表。
var Instructions = map[string]NewInstructions{
	"gcode": func(raw json.RawMessage) (contract.InstructionWriter, error) {
		var opts igc.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return igc.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（默认原子替换）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Plotter 工厂注册表（调试几何）。
var Plotter = map[string]NewPlotter{
	"gonumplot": func(raw json.RawMessage, out contract.Writer) (sdir.LayerPlotter, error) {
		var opts gplot.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return gplot.New(&opts, out)
	},
}
