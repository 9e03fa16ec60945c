package config

import (
	"encoding/json"

	"slicepath/pkg/contract"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Model: 输入模型（STL）路径。
	Model string `json:"model"`
	// Output: 指令文件路径。
	Output string `json:"output"`
	// DebugDir: 非空时将最终切片序列转储为 slice_<i>.json。
	DebugDir string `json:"debug_dir"`
	// DebugGeometryDir: 逐层几何图输出目录（slicer.write_debug_files 时必需）。
	DebugGeometryDir string `json:"debug_geometry_dir"`
	// Flow: skeleton|direct。
	Flow    string  `json:"flow"`
	Range   Range   `json:"range"`
	Plate   Plate   `json:"plate"`
	Slicer  Slicer  `json:"slicer"`
	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Range: 层序号闭区间；缺省或 -1 表示域端点。
type Range struct {
	First *int `json:"first"`
	Last  *int `json:"last"`
}

// SliceRange 返回解析后的区间（未设置取 -1）。
func (r Range) SliceRange() contract.SliceRange {
	out := contract.AllSlices
	if r.First != nil {
		out.First = *r.First
	}
	if r.Last != nil {
		out.Last = *r.Last
	}
	return out
}

// Plate: 贴板调整（仅 direct 流程）。
type Plate struct {
	Adjust *bool `json:"adjust"`
	// Bounds: strict|literal。
	Bounds string `json:"bounds"`
}

// Slicer: 切片几何参数。指针区分“未设置”与显式 0（例如 angle=0）。
type Slicer struct {
	LayerH                    *float64 `json:"layer_h"`
	LayerW                    *float64 `json:"layer_w"`
	FirstLayerZ               *float64 `json:"first_layer_z"`
	TubeSpacing               *float64 `json:"tube_spacing"`
	Angle                     *float64 `json:"angle"`
	NbOfShells                *int     `json:"nb_of_shells"`
	InsetCutoffMultiplier     *float64 `json:"inset_cutoff_multiplier"`
	InfillShrinkingMultiplier *float64 `json:"infill_shrinking_multiplier"`
	InsetDistanceMultiplier   *float64 `json:"inset_distance_multiplier"`
	WriteDebugFiles           *bool    `json:"write_debug_files"`
}

// Params 展开为切片参数；未设置项取零值（Defaults 保证已设置）。
func (s Slicer) Params() contract.SlicerParams {
	return contract.SlicerParams{
		LayerH:                    val(s.LayerH),
		LayerW:                    val(s.LayerW),
		FirstLayerZ:               val(s.FirstLayerZ),
		TubeSpacing:               val(s.TubeSpacing),
		Angle:                     val(s.Angle),
		NbOfShells:                val(s.NbOfShells),
		InsetCutoffMultiplier:     val(s.InsetCutoffMultiplier),
		InfillShrinkingMultiplier: val(s.InfillShrinkingMultiplier),
		InsetDistanceMultiplier:   val(s.InsetDistanceMultiplier),
		WriteDebugFiles:           val(s.WriteDebugFiles),
	}
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Mesh         string `json:"mesh"`
	Decomposer   string `json:"decomposer"`
	Projector    string `json:"projector"`
	Slicer       string `json:"slicer"`
	Instructions string `json:"instructions"`
	Writer       string `json:"writer"`
	Plotter      string `json:"plotter"`
}

// Options: 各组件的原样 JSON Options。
// writer 的 root 由 output/debug_dir 推导，无需在此给出。
type Options struct {
	Mesh         json.RawMessage `json:"mesh"`
	Decomposer   json.RawMessage `json:"decomposer"`
	Projector    json.RawMessage `json:"projector"`
	Slicer       json.RawMessage `json:"slicer"`
	Instructions json.RawMessage `json:"instructions"`
	Writer       json.RawMessage `json:"writer"`
	Plotter      json.RawMessage `json:"plotter"`
}

func ptr[T any](v T) *T { return &v }

func val[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// pick: over 非空时覆盖 base。
func pick[T any](base, over *T) *T {
	if over != nil {
		v := *over
		return &v
	}
	return base
}
