package main

import (
	"bufio"
	"os"
	"strings"
)

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "；
// - 仅按首个 '=' 分割；若 value 被成对的单/双引号包裹，则去除外层引号；
// - 双引号内常见转义 \n/\t/\\/\" 作最小处理；
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := unquote(strings.TrimSpace(line[eq+1:]))
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	q := val[0]
	if (q != '\'' && q != '"') || val[len(val)-1] != q {
		return val
	}
	val = val[1 : len(val)-1]
	if q == '"' {
		val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
	}
	return val
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# slicepath .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("SLICEPATH_CONFIG_FILE=\n")
	b.WriteString("SLICEPATH_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"MODEL", "OUTPUT", "FLOW", "DEBUG_DIR", "DEBUG_GEOMETRY_DIR", "LOG_LEVEL",
		"RANGE_FIRST", "RANGE_LAST", "PLATE_ADJUST", "PLATE_BOUNDS"} {
		b.WriteString("SLICEPATH_" + k + "=\n")
	}
	b.WriteString("\n# 切片参数\n")
	for _, k := range []string{"LAYER_H", "LAYER_W", "FIRST_LAYER_Z", "TUBE_SPACING", "ANGLE", "NB_OF_SHELLS",
		"INSET_CUTOFF_MULTIPLIER", "INFILL_SHRINKING_MULTIPLIER", "INSET_DISTANCE_MULTIPLIER", "WRITE_DEBUG_FILES"} {
		b.WriteString("SLICEPATH_SLICER_" + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"MESH", "DECOMPOSER", "PROJECTOR", "SLICER", "INSTRUCTIONS", "WRITER", "PLOTTER"} {
		b.WriteString("SLICEPATH_COMPONENTS_" + k + "=\n")
		b.WriteString("SLICEPATH_OPTIONS_" + k + "_JSON=\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
