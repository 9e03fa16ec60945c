package diag

import "sync"

// 最小指标钩子（默认 no-op）。名称：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}

// MetricsSink: 导出适配层实现该接口后通过 SetMetrics 注入。
type MetricsSink interface {
	IncOp(comp, stage, result string)
	IncError(comp, code string)
	ObserveDuration(comp, stage string, durMS int64)
}

var (
	metricsMu sync.RWMutex
	metrics   MetricsSink
)

// SetMetrics 设置指标落点（nil 恢复 no-op），返回之前的落点。
func SetMetrics(m MetricsSink) MetricsSink {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	prev := metrics
	metrics = m
	return prev
}

func currentMetrics() MetricsSink {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	if m := currentMetrics(); m != nil {
		m.IncOp(comp, stage, result)
	}
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	if m := currentMetrics(); m != nil {
		m.IncError(comp, code)
	}
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	if m := currentMetrics(); m != nil {
		m.ObserveDuration(comp, stage, durMS)
	}
}
