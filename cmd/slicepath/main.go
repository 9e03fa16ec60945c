package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "slicepath/internal/config"
	"slicepath/internal/diag"
	"slicepath/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行失败；3 配置/装配失败。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

// exitError 携带退出码穿过 cobra。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliFlags: 命令行覆盖（优先级：CLI > ENV(.env) > 配置文件 > 默认）。
type cliFlags struct {
	config   string
	model    string
	out      string
	flow     string
	first    int
	last     int
	debugDir string
	plate    string
	status   bool
	logLevel string
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	// Ctrl-C 取消进行中的切片
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// 旗标解析等 cobra 层错误
	fmt.Fprintf(stderr, "参数错误: %v\n", err)
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f cliFlags
	root := &cobra.Command{
		Use:           "slicepath [model.stl]",
		Short:         "将三维模型切片为逐层刀路指令",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlice(cmd, f, args, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "配置文件（.json/.yaml）；缺省读取 ./config.json（若存在）")
	pf.StringVar(&f.model, "model", "", "模型路径（覆盖配置）")
	pf.StringVar(&f.out, "out", "", "指令文件路径（覆盖配置）")
	pf.StringVar(&f.flow, "flow", "", "skeleton|direct（覆盖配置）")
	pf.IntVar(&f.first, "first", -1, "区间首层（-1 表示自底层）")
	pf.IntVar(&f.last, "last", -1, "区间末层（-1 表示至顶层）")
	pf.StringVar(&f.debugDir, "debug-dir", "", "切片 JSON 转储目录")
	pf.StringVar(&f.plate, "plate", "", "启用贴板调整：strict|literal（仅 direct 流程）")
	pf.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error（覆盖配置）")

	root.AddCommand(&cobra.Command{
		Use:   "slice [model.stl]",
		Short: "运行切片（默认子命令）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlice(cmd, f, args, stderr)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "init-config [dir]",
		Short: "在目录中生成默认 config.json 与 .env 模板（已存在则跳过）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			return initConfig(dir, stderr)
		},
	})
	return root
}

func initConfig(dir string, stderr io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "生成默认配置失败: %v\n", err)
		return fail(exitConfig, err)
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil && !os.IsExist(err) {
		fmt.Fprintf(stderr, "生成默认配置失败: %v\n", err)
		return fail(exitConfig, err)
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fmt.Fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func runSlice(cmd *cobra.Command, f cliFlags, args []string, stderr io.Writer) error {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	_ = loadDotEnv(".env")
	logger := diag.NewLogger(corrID, "info")
	defer func() { _ = logger.Sync() }()

	cfg, err := resolveConfig(cmd, f, args)
	if err != nil {
		fmt.Fprintf(stderr, "配置解析失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, err)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "配置校验失败: %v\n", err)
		dumpConfig(stderr, cfg)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, err)
	}

	// 使用最终配置中的日志级别重建 logger
	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" {
		_ = logger.Sync()
		logger = diag.NewLogger(corrID, lv)
	}

	if err := preflightOutputDir(filepath.Dir(cfg.Output)); err != nil {
		fmt.Fprintf(stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, err)
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, err)
	}

	// 终端提示（非日志）与日志进度同时接收
	term := diag.NewTerminal(stderr, f.status)
	comp.Progress = diag.Tee(term, diag.NewProgressLog(logger, "progress"))
	term.RunStart(cfg.Model, string(set.Flow))

	logger.Debug("config", "effective", diag.KV{
		"model":        cfg.Model,
		"output":       cfg.Output,
		"flow":         string(set.Flow),
		"first":        strconv.Itoa(set.Range.First),
		"last":         strconv.Itoa(set.Range.Last),
		"plate":        fmt.Sprintf("%t/%s", set.Plate.Adjust, set.Plate.Bounds),
		"debug_dir":    cfg.DebugDir,
		"layer_h":      strconv.FormatFloat(set.Slicer.LayerH, 'g', -1, 64),
		"tube_spacing": strconv.FormatFloat(set.Slicer.TubeSpacing, 'g', -1, 64),
		"shells":       strconv.Itoa(set.Slicer.NbOfShells),
	})

	t := logger.Start("pipeline", "run")
	if err := pipelineRun(cmd.Context(), comp, set, logger); err != nil {
		code := string(diag.Classify(err))
		logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "运行失败: %v\n", err)
		}
		term.RunFinish(false, time.Since(start))
		return fail(exitRun, err)
	}
	t.Finish("run", 0)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, time.Since(start))
	return nil
}

// resolveConfig 按 默认 → 配置文件/JSON → ENV → CLI 合并。
func resolveConfig(cmd *cobra.Command, f cliFlags, args []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	var (
		base cfgpkg.Config
		err  error
	)
	// 来源优先级：--config > SLICEPATH_CONFIG_JSON > SLICEPATH_CONFIG_FILE > ./config.json
	js := os.Getenv("SLICEPATH_CONFIG_JSON")
	path := f.config
	if path == "" && js == "" {
		path = os.Getenv("SLICEPATH_CONFIG_FILE")
		if path == "" {
			if _, serr := os.Stat("config.json"); serr == nil {
				path = "config.json"
			}
		}
	}
	switch {
	case path != "":
		base, err = cfgpkg.LoadFile(path)
	case js != "":
		base, err = cfgpkg.LoadJSON("", []byte(js))
	}
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, base)

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	var over cfgpkg.Config
	over.Model = f.model
	if len(args) == 1 {
		over.Model = args[0]
	}
	over.Output = f.out
	over.Flow = f.flow
	over.DebugDir = f.debugDir
	over.Logging.Level = f.logLevel
	flags := cmd.Flags()
	if flags.Changed("first") {
		v := f.first
		over.Range.First = &v
	}
	if flags.Changed("last") {
		v := f.last
		over.Range.Last = &v
	}
	if strings.TrimSpace(f.plate) != "" {
		adjust := true
		over.Plate.Adjust = &adjust
		over.Plate.Bounds = f.plate
	}
	return cfgpkg.Merge(cfg, over), nil
}

func dumpConfig(w io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "有效配置:\n%s\n", b)
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// preflightOutputDir: 启动前检查输出目录可写性。
// - 目录已存在：尝试创建并删除临时文件；
// - 目录不存在：逐级上溯到最近的已存在祖先，检查其可写性。
func preflightOutputDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	return preflightOutputDir(parent)
}
