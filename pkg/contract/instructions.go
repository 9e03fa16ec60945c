package contract

import "io"

// InstructionWriter: 指令（刀路）文本格式化。
// 约束：
//  1. 每个输出目标恰好一次 WriteHeader；
//  2. WriteSlice 按序号顺序逐层调用，实现不得重排；
//  3. 仅写入给定 io.Writer，不自行打开/关闭文件。
type InstructionWriter interface {
	WriteHeader(w io.Writer, modelSource string) error
	WriteSlice(w io.Writer, s *SliceData) error
}

// InstructionFinisher: 可选扩展。若实现，则在全部切片写完后调用一次。
type InstructionFinisher interface {
	WriteFooter(w io.Writer) error
}
