package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：model/output 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Flow:  "skeleton",
		Range: Range{First: ptr(-1), Last: ptr(-1)},
		Plate: Plate{Adjust: ptr(false), Bounds: "strict"},
		Slicer: Slicer{
			LayerH:                    ptr(0.27),
			LayerW:                    ptr(0.4),
			FirstLayerZ:               ptr(0.11),
			TubeSpacing:               ptr(0.8),
			Angle:                     ptr(math.Pi / 2),
			NbOfShells:                ptr(2),
			InsetCutoffMultiplier:     ptr(0.01),
			InfillShrinkingMultiplier: ptr(0.25),
			InsetDistanceMultiplier:   ptr(0.9),
			WriteDebugFiles:           ptr(false),
		},
		Logging: Logging{Level: "info"},
		Components: Components{
			Mesh:         "stl",
			Decomposer:   "grid",
			Projector:    "grid",
			Slicer:       "direct",
			Instructions: "gcode",
			Writer:       "fs",
			Plotter:      "gonumplot",
		},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		return LoadYAML(raw)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 先将 YAML 归一为 JSON，再按 LoadJSON 严格解析；
// 因此 options 子树在 YAML 中同样以普通映射书写。
func LoadYAML(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		return Config{}, errors.New("yaml: empty document")
	}
	js, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	return LoadJSON("", js)
}

// normalizeYAML 将非字符串键的映射转为字符串键（encoding/json 要求）。
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeYAML(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalizeYAML(e)
		}
		return t
	default:
		return v
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 字符串空不覆盖；指针字段非 nil 覆盖；原样 JSON 按组件整体替换，不做深度合并。
func Merge(base, over Config) Config {
	out := base
	str := func(dst *string, v string) {
		if t := strings.TrimSpace(v); t != "" {
			*dst = t
		}
	}
	str(&out.Model, over.Model)
	str(&out.Output, over.Output)
	str(&out.DebugDir, over.DebugDir)
	str(&out.DebugGeometryDir, over.DebugGeometryDir)
	str(&out.Flow, over.Flow)
	str(&out.Logging.Level, over.Logging.Level)

	out.Range.First = pick(base.Range.First, over.Range.First)
	out.Range.Last = pick(base.Range.Last, over.Range.Last)
	out.Plate.Adjust = pick(base.Plate.Adjust, over.Plate.Adjust)
	str(&out.Plate.Bounds, over.Plate.Bounds)

	s, o := base.Slicer, over.Slicer
	out.Slicer = Slicer{
		LayerH:                    pick(s.LayerH, o.LayerH),
		LayerW:                    pick(s.LayerW, o.LayerW),
		FirstLayerZ:               pick(s.FirstLayerZ, o.FirstLayerZ),
		TubeSpacing:               pick(s.TubeSpacing, o.TubeSpacing),
		Angle:                     pick(s.Angle, o.Angle),
		NbOfShells:                pick(s.NbOfShells, o.NbOfShells),
		InsetCutoffMultiplier:     pick(s.InsetCutoffMultiplier, o.InsetCutoffMultiplier),
		InfillShrinkingMultiplier: pick(s.InfillShrinkingMultiplier, o.InfillShrinkingMultiplier),
		InsetDistanceMultiplier:   pick(s.InsetDistanceMultiplier, o.InsetDistanceMultiplier),
		WriteDebugFiles:           pick(s.WriteDebugFiles, o.WriteDebugFiles),
	}

	str(&out.Components.Mesh, over.Components.Mesh)
	str(&out.Components.Decomposer, over.Components.Decomposer)
	str(&out.Components.Projector, over.Components.Projector)
	str(&out.Components.Slicer, over.Components.Slicer)
	str(&out.Components.Instructions, over.Components.Instructions)
	str(&out.Components.Writer, over.Components.Writer)
	str(&out.Components.Plotter, over.Components.Plotter)

	raw := func(dst *json.RawMessage, v json.RawMessage) {
		if len(v) > 0 {
			*dst = cloneRaw(v)
		}
	}
	raw(&out.Options.Mesh, over.Options.Mesh)
	raw(&out.Options.Decomposer, over.Options.Decomposer)
	raw(&out.Options.Projector, over.Options.Projector)
	raw(&out.Options.Slicer, over.Options.Slicer)
	raw(&out.Options.Instructions, over.Options.Instructions)
	raw(&out.Options.Writer, over.Options.Writer)
	raw(&out.Options.Plotter, over.Options.Plotter)
	return out
}

// EnvPrefix: 环境变量前缀。
const EnvPrefix = "SLICEPATH_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：MODEL, OUTPUT, FLOW, DEBUG_DIR, DEBUG_GEOMETRY_DIR, LOG_LEVEL,
// RANGE_FIRST, RANGE_LAST, PLATE_ADJUST, PLATE_BOUNDS, SLICER_<字段>, COMPONENTS_<组件>, OPTIONS_<组件>_JSON。
// 数值无法解析时返回错误（而非静默忽略），便于定位拼写问题。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		if err := applyEnv(&over, key, val); err != nil {
			return Config{}, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
		}
	}
	return over, nil
}

func applyEnv(c *Config, key, v string) error {
	strs := map[string]*string{
		"MODEL":                   &c.Model,
		"OUTPUT":                  &c.Output,
		"FLOW":                    &c.Flow,
		"DEBUG_DIR":               &c.DebugDir,
		"DEBUG_GEOMETRY_DIR":      &c.DebugGeometryDir,
		"LOG_LEVEL":               &c.Logging.Level,
		"PLATE_BOUNDS":            &c.Plate.Bounds,
		"COMPONENTS_MESH":         &c.Components.Mesh,
		"COMPONENTS_DECOMPOSER":   &c.Components.Decomposer,
		"COMPONENTS_PROJECTOR":    &c.Components.Projector,
		"COMPONENTS_SLICER":       &c.Components.Slicer,
		"COMPONENTS_INSTRUCTIONS": &c.Components.Instructions,
		"COMPONENTS_WRITER":       &c.Components.Writer,
		"COMPONENTS_PLOTTER":      &c.Components.Plotter,
	}
	if p, ok := strs[key]; ok {
		*p = v
		return nil
	}
	floats := map[string]**float64{
		"SLICER_LAYER_H":                     &c.Slicer.LayerH,
		"SLICER_LAYER_W":                     &c.Slicer.LayerW,
		"SLICER_FIRST_LAYER_Z":               &c.Slicer.FirstLayerZ,
		"SLICER_TUBE_SPACING":                &c.Slicer.TubeSpacing,
		"SLICER_ANGLE":                       &c.Slicer.Angle,
		"SLICER_INSET_CUTOFF_MULTIPLIER":     &c.Slicer.InsetCutoffMultiplier,
		"SLICER_INFILL_SHRINKING_MULTIPLIER": &c.Slicer.InfillShrinkingMultiplier,
		"SLICER_INSET_DISTANCE_MULTIPLIER":   &c.Slicer.InsetDistanceMultiplier,
	}
	if p, ok := floats[key]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = &f
		return nil
	}
	ints := map[string]**int{
		"RANGE_FIRST":         &c.Range.First,
		"RANGE_LAST":          &c.Range.Last,
		"SLICER_NB_OF_SHELLS": &c.Slicer.NbOfShells,
	}
	if p, ok := ints[key]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = &n
		return nil
	}
	bools := map[string]**bool{
		"PLATE_ADJUST":             &c.Plate.Adjust,
		"SLICER_WRITE_DEBUG_FILES": &c.Slicer.WriteDebugFiles,
	}
	if p, ok := bools[key]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = &b
		return nil
	}
	opts := map[string]*json.RawMessage{
		"OPTIONS_MESH_JSON":         &c.Options.Mesh,
		"OPTIONS_DECOMPOSER_JSON":   &c.Options.Decomposer,
		"OPTIONS_PROJECTOR_JSON":    &c.Options.Projector,
		"OPTIONS_SLICER_JSON":       &c.Options.Slicer,
		"OPTIONS_INSTRUCTIONS_JSON": &c.Options.Instructions,
		"OPTIONS_WRITER_JSON":       &c.Options.Writer,
		"OPTIONS_PLOTTER_JSON":      &c.Options.Plotter,
	}
	if p, ok := opts[key]; ok {
		if !json.Valid([]byte(v)) {
			return errors.New("invalid json")
		}
		*p = json.RawMessage(v)
		return nil
	}
	// 集合之外的键忽略
	return nil
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
