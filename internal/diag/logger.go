package diag

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger: 结构化日志器（zap JSON 编码，单行事件），按阶段记录 start/finish/error。
// nil *Logger 上的所有方法均为 no-op。
type Logger struct {
	z *zap.Logger
}

// NewLogger 以配置的 level 初始化，写入 logs/slicepath-current.log，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerTo(corrID, level, NewRotatingFile("logs", 10*1024*1024))
}

// NewLoggerTo 写入任意 WriteSyncer（测试或自定义落点）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcTime,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	return NewLoggerCore(corrID, zapcore.NewCore(enc, ws, ParseLevel(level)))
}

// NewLoggerCore 直接使用给定 core（例如 zaptest/observer）。
func NewLoggerCore(corrID string, core zapcore.Core) *Logger {
	z := zap.New(core)
	if corrID != "" {
		z = z.With(zap.String("corr_id", corrID))
	}
	return &Logger{z: z}
}

func utcTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// ParseLevel: debug|info|warn|error，其他取 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync 刷出缓冲。
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.z.Sync()
}

// KV: 附加键值（按键排序输出，保证行内容稳定）。
type KV map[string]string

func (kv KV) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, kv[k])
	}
	return nil
}

func (l *Logger) emit(lv zapcore.Level, msg, comp, stage string, fields ...zap.Field) {
	if l == nil {
		return
	}
	if ce := l.z.Check(lv, msg); ce != nil {
		ce.Write(append([]zap.Field{zap.String("comp", comp), zap.String("stage", stage)}, fields...)...)
	}
}

func kvField(kv KV) zap.Field {
	if len(kv) == 0 {
		return zap.Skip()
	}
	return zap.Object("kv", kv)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, nil)
}

// StartWithKV 记录带键值的 start。
func (l *Logger) StartWithKV(comp, msg string, kv KV) *Timer {
	l.emit(zapcore.InfoLevel, msg, comp, "start", kvField(kv))
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, nil)
}

// ErrorWithKV 附带键值（例如切片序号、路径）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, kv KV) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.emit(zapcore.ErrorLevel, msg, comp, "error", zap.String("code", code), zap.Int64("dur_ms", dur), kvField(kv))
}

// Warn 记录 warn 事件。
func (l *Logger) Warn(comp, msg string, kv KV) {
	l.emit(zapcore.WarnLevel, msg, comp, "warn", kvField(kv))
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.emit(zapcore.InfoLevel, msg, comp, "finish", zap.Int64("dur_ms", time.Since(start).Milliseconds()), zap.Int64("count", count))
}

// Debug 输出调试事件（仅 level=debug 时生效）。
func (l *Logger) Debug(comp, msg string, kv KV) {
	l.emit(zapcore.DebugLevel, msg, comp, "debug", kvField(kv))
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	t0   time.Time
}

// Finish 记录 finish；count 为本阶段处理的单元数。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	d := time.Since(t.t0)
	t.l.emit(zapcore.InfoLevel, msg, t.comp, "finish", zap.Int64("dur_ms", d.Milliseconds()), zap.Int64("count", count))
	ObserveDuration(t.comp, "finish", d.Milliseconds())
}

// Since 返回计时起点（用于 Error 的 durSince）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
