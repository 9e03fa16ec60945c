package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "slicepath/internal/config"
	"slicepath/internal/diag"
	"slicepath/internal/pipeline"
	"slicepath/pkg/contract"
)

// stubRun 替换 pipelineRun 并记录收到的装配结果。
func stubRun(t *testing.T, ret error) *pipeline.Settings {
	t.Helper()
	var got pipeline.Settings
	old := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) error {
		got = set
		if comp.Progress == nil {
			return errors.New("progress not injected")
		}
		return ret
	}
	t.Cleanup(func() { pipelineRun = old })
	return &got
}

// inTemp 切到临时目录，日志与默认 config.json 均落在其中。
func inTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func runArgs(args ...string) (int, string) {
	var out, errb bytes.Buffer
	code := run(args, &out, &errb)
	return code, errb.String()
}

func TestWriteConfigNoOverwrite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, writeConfig(file, cfgpkg.Defaults()))
	err := writeConfig(file, cfgpkg.Defaults())
	require.True(t, os.IsExist(err), "已存在文件不应覆盖")
}

func TestDumpConfig(t *testing.T) {
	var buf bytes.Buffer
	dumpConfig(&buf, cfgpkg.DefaultTemplateConfig())
	assert.Contains(t, buf.String(), `"model": "model.stl"`)
}

func TestRunInitConfig(t *testing.T) {
	dir := inTemp(t)
	outDir := filepath.Join(dir, "cfg")
	code, _ := runArgs("init-config", outDir)
	require.Equal(t, 0, code)
	assert.FileExists(t, filepath.Join(outDir, "config.json"))
	env, err := os.ReadFile(filepath.Join(outDir, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "SLICEPATH_SLICER_LAYER_H=")
	assert.Contains(t, string(env), "SLICEPATH_OPTIONS_WRITER_JSON=")

	// 生成的配置可直接通过校验
	cfg, err := cfgpkg.LoadFile(filepath.Join(outDir, "config.json"))
	require.NoError(t, err)
	require.NoError(t, cfgpkg.Validate(cfg))
}

func TestRunInitConfigDefaultDirKeepsExisting(t *testing.T) {
	dir := inTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644))
	code, _ := runArgs("init-config")
	require.Equal(t, 0, code)
	b, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b), "已有 config.json 保持不变")
	assert.FileExists(t, filepath.Join(dir, ".env"))
}

func TestRunSuccess(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	code, stderr := runArgs("--status=false", "--out", filepath.Join(dir, "out", "m.gcode"), "m.stl")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "m.stl", got.Model)
	assert.Equal(t, contract.ArtifactID("m.gcode"), got.Output)
	assert.Equal(t, pipeline.FlowSkeleton, got.Flow)
	assert.Equal(t, contract.AllSlices, got.Range)
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestRunSliceSubcommand(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	code, stderr := runArgs("slice", "--model", "a.stl", "--out", filepath.Join(dir, "a.gcode"), "--status=false")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "a.stl", got.Model)
}

func TestRunStatusOutput(t *testing.T) {
	dir := inTemp(t)
	stubRun(t, nil)
	code, stderr := runArgs("--model", "cube.stl", "--out", filepath.Join(dir, "c.gcode"))
	require.Equal(t, 0, code)
	assert.Contains(t, stderr, "[ok] cube.stl")
}

func TestRunCLIOverrides(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	code, stderr := runArgs("--status=false",
		"--model", "m.stl",
		"--out", filepath.Join(dir, "m.gcode"),
		"--flow", "direct",
		"--first", "2",
		"--last", "7",
		"--plate", "literal",
		"--debug-dir", filepath.Join(dir, "dbg"),
		"--log-level", "debug",
	)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, pipeline.FlowDirect, got.Flow)
	assert.Equal(t, contract.SliceRange{First: 2, Last: 7}, got.Range)
	assert.Equal(t, pipeline.PlateSettings{Adjust: true, Bounds: pipeline.PlateBoundsLiteral}, got.Plate)
}

func TestRunWithConfigFile(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	cfg := cfgpkg.Config{Model: "f.stl", Output: filepath.Join(dir, "f.gcode"), Flow: "direct"}
	b, _ := json.Marshal(cfg)
	p := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(p, b, 0o644))

	code, stderr := runArgs("--status=false", "--config", p)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "f.stl", got.Model)
	assert.Equal(t, pipeline.FlowDirect, got.Flow)
}

func TestRunYAMLConfigFile(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	p := filepath.Join(dir, "c.yaml")
	y := "model: y.stl\noutput: " + filepath.Join(dir, "y.gcode") + "\nslicer:\n  layer_h: 0.3\n"
	require.NoError(t, os.WriteFile(p, []byte(y), 0o644))

	code, stderr := runArgs("--status=false", "--config", p)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "y.stl", got.Model)
	assert.Equal(t, 0.3, got.Slicer.LayerH)
}

func TestRunDefaultConfigFile(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	cfg := cfgpkg.Config{Model: "d.stl", Output: filepath.Join(dir, "d.gcode")}
	b, _ := json.Marshal(cfg)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), b, 0o644))

	code, stderr := runArgs("--status=false")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "d.stl", got.Model)
}

func TestRunConfigFileEnv(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	cfg := cfgpkg.Config{Model: "e.stl", Output: filepath.Join(dir, "e.gcode")}
	b, _ := json.Marshal(cfg)
	p := filepath.Join(dir, "env.json")
	require.NoError(t, os.WriteFile(p, b, 0o644))
	t.Setenv("SLICEPATH_CONFIG_FILE", p)
	t.Setenv("SLICEPATH_RANGE_FIRST", "1")

	code, stderr := runArgs("--status=false")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "e.stl", got.Model)
	assert.Equal(t, 1, got.Range.First)
}

func TestRunConfigJSONEnvAndCLIPrecedence(t *testing.T) {
	dir := inTemp(t)
	got := stubRun(t, nil)
	t.Setenv("SLICEPATH_CONFIG_JSON", `{"model":"j.stl","output":"`+filepath.ToSlash(filepath.Join(dir, "j.gcode"))+`"}`)
	t.Setenv("SLICEPATH_MODEL", "env.stl")

	code, stderr := runArgs("--status=false")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "env.stl", got.Model, "ENV 覆盖配置来源")

	code, stderr = runArgs("--status=false", "--model", "cli.stl")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "cli.stl", got.Model, "CLI 覆盖 ENV")
}

func TestRunConfigFileNotFound(t *testing.T) {
	inTemp(t)
	stubRun(t, nil)
	code, stderr := runArgs("--config", "missing.json")
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "配置解析失败")
}

func TestRunValidateError(t *testing.T) {
	inTemp(t)
	stubRun(t, nil)
	// 缺少 output
	code, stderr := runArgs("--model", "m.stl")
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "配置校验失败")
	assert.Contains(t, stderr, "有效配置")

	// plate 仅用于 direct 流程
	code, _ = runArgs("--model", "m.stl", "--out", "o.gcode", "--plate", "strict")
	assert.Equal(t, 3, code)
}

func TestRunBadEnvValue(t *testing.T) {
	inTemp(t)
	stubRun(t, nil)
	t.Setenv("SLICEPATH_SLICER_LAYER_H", "thin")
	code, _ := runArgs("--model", "m.stl", "--out", "o.gcode")
	assert.Equal(t, 3, code)
}

func TestRunAssembleError(t *testing.T) {
	dir := inTemp(t)
	stubRun(t, nil)
	t.Setenv("SLICEPATH_OPTIONS_INSTRUCTIONS_JSON", `{"bogus":1}`)
	code, stderr := runArgs("--model", "m.stl", "--out", filepath.Join(dir, "o.gcode"))
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "装配失败")
}

func TestRunOutputNotDir(t *testing.T) {
	dir := inTemp(t)
	stubRun(t, nil)
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	code, stderr := runArgs("--model", "m.stl", "--out", filepath.Join(blocker, "o.gcode"))
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "输出目录")
}

func TestRunPipelineError(t *testing.T) {
	dir := inTemp(t)
	stubRun(t, contract.ErrRangeInvalid)
	code, stderr := runArgs("--model", "m.stl", "--out", filepath.Join(dir, "o.gcode"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "运行失败")
	assert.Contains(t, stderr, "[fail] m.stl")
}

func TestRunPipelineCanceledQuiet(t *testing.T) {
	dir := inTemp(t)
	stubRun(t, context.Canceled)
	code, stderr := runArgs("--status=false", "--model", "m.stl", "--out", filepath.Join(dir, "o.gcode"))
	assert.Equal(t, 1, code)
	assert.NotContains(t, stderr, "运行失败")
}

func TestRunBadFlag(t *testing.T) {
	inTemp(t)
	code, stderr := runArgs("--first", "x")
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "参数错误")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	content := "# c\n\nexport SP_T_A=1\nSP_T_B=\"x\\ty\"\nSP_T_C='raw\\n'\nSP_T_KEEP=new\nnoequals\n=novalue\n"
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	t.Setenv("SP_T_KEEP", "old")
	for _, k := range []string{"SP_T_A", "SP_T_B", "SP_T_C"} {
		k := k
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}

	require.NoError(t, loadDotEnv(p))
	assert.Equal(t, "1", os.Getenv("SP_T_A"))
	assert.Equal(t, "x\ty", os.Getenv("SP_T_B"))
	assert.Equal(t, `raw\n`, os.Getenv("SP_T_C"), "单引号不转义")
	assert.Equal(t, "old", os.Getenv("SP_T_KEEP"), "不覆盖已有 ENV")

	require.NoError(t, loadDotEnv(filepath.Join(dir, "absent")))
}

func TestPreflightOutputDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, preflightOutputDir(dir))
	require.NoError(t, preflightOutputDir(filepath.Join(dir, "a", "b")), "不存在的目录回溯到祖先")
	f := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	require.Error(t, preflightOutputDir(f))
}
