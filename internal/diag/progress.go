package diag

import (
	"strconv"
	"sync"
	"time"

	"slicepath/pkg/contract"
)

// ProgressLog 将进度阶段写成日志事件：Reset 记 start，计满记 finish。
type ProgressLog struct {
	l    *Logger
	comp string

	mu    sync.Mutex
	label string
	total int
	done  int
	t0    time.Time
}

var _ contract.Progress = (*ProgressLog)(nil)

func NewProgressLog(l *Logger, comp string) *ProgressLog {
	return &ProgressLog{l: l, comp: comp}
}

func (p *ProgressLog) Reset(total int, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.label, p.total, p.done, p.t0 = label, total, 0, time.Now()
	p.l.StartWithKV(p.comp, label, KV{"total": strconv.Itoa(total)})
}

func (p *ProgressLog) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.done == p.total {
		p.l.InfoFinish(p.comp, p.label, p.t0, int64(p.done))
	}
}

// Tee 将同一进度广播到多个落点（nil 跳过）。
func Tee(ps ...contract.Progress) contract.Progress {
	out := make(multiProgress, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

type multiProgress []contract.Progress

func (m multiProgress) Reset(total int, label string) {
	for _, p := range m {
		p.Reset(total, label)
	}
}

func (m multiProgress) Tick() {
	for _, p := range m {
		p.Tick()
	}
}
