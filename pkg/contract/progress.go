package contract

// Progress: 只写旁路的进度通道（无背压）。
// 约束：每个阶段先 Reset(total, label)，随后对每个“候选单元”调用一次 Tick（含被跳过的单元）。
type Progress interface {
	Reset(total int, label string)
	Tick()
}

// NopProgress: 空实现，调用方未注入进度通道时使用。
type NopProgress struct{}

func (NopProgress) Reset(int, string) {}
func (NopProgress) Tick()             {}

// OrNop 在 p 为 nil 时返回 NopProgress。
func OrNop(p Progress) Progress {
	if p == nil {
		return NopProgress{}
	}
	return p
}
