package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 输入 model.stl，输出 out/model.gcode；
// - 组件名采用仓库内置实现；
// - 选项包含全部键，值为安全中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Model = "model.stl"
	cfg.Output = "out/model.gcode"
	cfg.DebugGeometryDir = "out/geometry"

	cfg.Options.Mesh = json.RawMessage(`{
  "buf_size": 65536,
  "keep_z": false,
  "scale": 1
}`)
	cfg.Options.Decomposer = json.RawMessage(`{
  "grid_spacing": 0
}`)
	cfg.Options.Projector = json.RawMessage(`{
  "min_infill_length": 0,
  "every": 1
}`)
	cfg.Options.Slicer = json.RawMessage(`{
  "infill_spacing": 0
}`)
	cfg.Options.Instructions = json.RawMessage(`{
  "feed_rate": 1800,
  "travel_rate": 4800,
  "extrusion_per_mm": 0.05,
  "start_gcode": ["G28"],
  "end_gcode": ["M104 S0", "M84"],
  "decimals": 3
}`)
	// root 由 output/debug_dir 推导，不在此处给出
	cfg.Options.Writer = json.RawMessage(`{
  "atomic": true,
  "nested": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Plotter = json.RawMessage(`{
  "size_inch": 6,
  "format": "png"
}`)
	return cfg
}
