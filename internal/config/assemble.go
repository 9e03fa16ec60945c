package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"slicepath/internal/pipeline"
	"slicepath/pkg/contract"
	"slicepath/pkg/registry"
	sdir "slicepath/plugins/slicer/direct"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Model) == "" {
		return errors.New("config: model not set")
	}
	if strings.TrimSpace(cfg.Output) == "" {
		return errors.New("config: output not set")
	}
	flow, err := pipeline.ParseFlow(cfg.Flow)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	r := cfg.Range.SliceRange()
	if r.First < -1 || r.Last < -1 {
		return fmt.Errorf("config: range bounds must be >= -1, got [%d,%d]", r.First, r.Last)
	}
	if r.First >= 0 && r.Last >= 0 && r.First > r.Last {
		return fmt.Errorf("config: range first(%d) > last(%d)", r.First, r.Last)
	}
	if _, err := pipeline.ParsePlateBounds(cfg.Plate.Bounds); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if val(cfg.Plate.Adjust) && flow != pipeline.FlowDirect {
		return errors.New("config: plate.adjust only applies to the direct flow")
	}

	p := cfg.Slicer.Params()
	if p.LayerH <= 0 || p.LayerW <= 0 || p.TubeSpacing <= 0 {
		return errors.New("config: slicer layer_h, layer_w and tube_spacing must be > 0")
	}
	if p.FirstLayerZ < 0 {
		return errors.New("config: slicer.first_layer_z must be >= 0")
	}
	if p.InsetCutoffMultiplier < 0 || p.InfillShrinkingMultiplier < 0 || p.InsetDistanceMultiplier < 0 {
		return errors.New("config: slicer multipliers must be >= 0")
	}
	// 平面区域由最内层壳推导，skeleton 流程至少需要一层壳
	if flow == pipeline.FlowSkeleton && p.NbOfShells < 1 {
		return errors.New("config: slicer.nb_of_shells must be >= 1 for the skeleton flow")
	}
	if p.NbOfShells < 0 {
		return errors.New("config: slicer.nb_of_shells must be >= 0")
	}
	if p.WriteDebugFiles && strings.TrimSpace(cfg.DebugGeometryDir) == "" {
		return errors.New("config: slicer.write_debug_files requires debug_geometry_dir")
	}

	d := Defaults().Components
	checks := []struct {
		kind string
		ok   bool
	}{
		{"mesh", registry.MeshReader[effName(cfg.Components.Mesh, d.Mesh)] != nil},
		{"decomposer", registry.Decomposer[effName(cfg.Components.Decomposer, d.Decomposer)] != nil},
		{"projector", registry.Projector[effName(cfg.Components.Projector, d.Projector)] != nil},
		{"slicer", registry.LayerSlicer[effName(cfg.Components.Slicer, d.Slicer)] != nil},
		{"instructions", registry.Instructions[effName(cfg.Components.Instructions, d.Instructions)] != nil},
		{"writer", registry.Writer[effName(cfg.Components.Writer, d.Writer)] != nil},
		{"plotter", registry.Plotter[effName(cfg.Components.Plotter, d.Plotter)] != nil},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("config: %s component not registered", c.kind)
		}
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// Writer 的 root 由 output 所在目录、debug_dir、debug_geometry_dir 推导。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	flow, _ := pipeline.ParseFlow(cfg.Flow)
	bounds, _ := pipeline.ParsePlateBounds(cfg.Plate.Bounds)
	params := cfg.Slicer.Params()
	measure := contract.LayerMeasure{FirstZ: params.FirstLayerZ, LayerH: params.LayerH}

	d := Defaults().Components
	var comp pipeline.Components
	var err error

	newWriter := registry.Writer[effName(cfg.Components.Writer, d.Writer)]
	outRoot := filepath.Dir(cfg.Output)
	if comp.Writer, err = writerAt(newWriter, cfg.Options.Writer, outRoot, false); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer: %w", err)
	}
	if strings.TrimSpace(cfg.DebugDir) != "" {
		// 调试转储可丢失，跳过 fsync
		if comp.Dump, err = writerAt(newWriter, cfg.Options.Writer, cfg.DebugDir, true); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("dump writer: %w", err)
		}
	}
	if comp.Instructions, err = registry.Instructions[effName(cfg.Components.Instructions, d.Instructions)](cfg.Options.Instructions); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("instructions: %w", err)
	}
	mesh, err := registry.MeshReader[effName(cfg.Components.Mesh, d.Mesh)](cfg.Options.Mesh, measure)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("mesh: %w", err)
	}

	switch flow {
	case pipeline.FlowSkeleton:
		if comp.Decomposer, err = registry.Decomposer[effName(cfg.Components.Decomposer, d.Decomposer)](cfg.Options.Decomposer, mesh); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("decomposer: %w", err)
		}
		if comp.Projector, err = registry.Projector[effName(cfg.Components.Projector, d.Projector)](cfg.Options.Projector); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("projector: %w", err)
		}
	case pipeline.FlowDirect:
		comp.Mesh = mesh
		var plot sdir.LayerPlotter
		if params.WriteDebugFiles {
			out, err := writerAt(newWriter, cfg.Options.Writer, cfg.DebugGeometryDir, true)
			if err != nil {
				return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("plot writer: %w", err)
			}
			if plot, err = registry.Plotter[effName(cfg.Components.Plotter, d.Plotter)](cfg.Options.Plotter, out); err != nil {
				return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("plotter: %w", err)
			}
		}
		if comp.Slicer, err = registry.LayerSlicer[effName(cfg.Components.Slicer, d.Slicer)](cfg.Options.Slicer, plot); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("slicer: %w", err)
		}
	}

	set := pipeline.Settings{
		Model:  cfg.Model,
		Output: contract.ArtifactID(filepath.Base(cfg.Output)),
		Flow:   flow,
		Range:  cfg.Range.SliceRange(),
		Plate:  pipeline.PlateSettings{Adjust: val(cfg.Plate.Adjust), Bounds: bounds},
		Slicer: params,
	}
	return comp, set, nil
}

// writerAt 在用户给出的 writer 选项上覆写 root（以及可选的 no_sync）。
func writerAt(newWriter registry.NewWriter, raw json.RawMessage, root string, noSync bool) (contract.Writer, error) {
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	m["root"] = root
	if _, set := m["no_sync"]; noSync && !set {
		m["no_sync"] = true
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return newWriter(b)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
