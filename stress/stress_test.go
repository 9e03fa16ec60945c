package stress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	cfgpkg "slicepath/internal/config"
	"slicepath/internal/pipeline"
	"slicepath/plugins/mesh/stl"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ptr[T any](v T) *T { return &v }

// baseConfig 构造可运行的最小配置。
func baseConfig(model, outDir, flow string, layerH float64) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Model = model
	cfg.Output = filepath.Join(outDir, "model.gcode")
	cfg.Flow = flow
	cfg.DebugGeometryDir = ""
	cfg.Logging.Level = "error"
	cfg.Slicer.LayerH = ptr(layerH)
	cfg.Slicer.FirstLayerZ = ptr(layerH / 2)
	cfg.Slicer.TubeSpacing = ptr(1.0)
	cfg.Options.Writer = json.RawMessage(`{"atomic":true,"nested":false,"perm_file":0,"perm_dir":0,"buf_size":65536}`)
	return cfg
}

// runPipeline 执行完整流水线。
func runPipeline(cfg cfgpkg.Config) error {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return err
	}
	return pipeline.Run(context.Background(), comp, set, nil)
}

// TestStress 在不同层数与流程下运行流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过压力测试")
	}
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, stl.EncodeBinary(&buf, stl.Cube(40, 40, 20)))
	model := filepath.Join(dir, "block.stl")
	require.NoError(t, os.WriteFile(model, buf.Bytes(), 0o644))

	layers := []float64{1, 0.5, 0.2}
	for _, flow := range []string{"skeleton", "direct"} {
		for _, h := range layers {
			t.Run(fmt.Sprintf("%s_layer_%g", flow, h), func(t *testing.T) {
				const runs = 5
				successes := 0
				latencies := make([]time.Duration, 0, runs)
				for i := 0; i < runs; i++ {
					cfg := baseConfig(model, t.TempDir(), flow, h)
					start := time.Now()
					err := runPipeline(cfg)
					dur := time.Since(start)
					if err != nil {
						t.Errorf("run %d: %v", i, err)
						continue
					}
					successes++
					latencies = append(latencies, dur)
				}
				if successes == 0 {
					t.Fatalf("全部运行失败")
				}
				sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
				var total time.Duration
				for _, d := range latencies {
					total += d
				}
				avg := total / time.Duration(len(latencies))
				idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
				if idx < 0 {
					idx = 0
				}
				t.Logf("%s 层高%g 成功率%.2f 平均%v 95%%延迟%v", flow, h, float64(successes)/float64(runs), avg, latencies[idx])
			})
		}
	}
}
