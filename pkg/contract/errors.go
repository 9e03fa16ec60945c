package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志归类）。
var (
	// ErrInvalidInput: 前置条件违例（空序列、空路径、缺失组件等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrRangeInvalid: 切片区间解析后越界或逆序（0 <= first <= last < count 不成立）。
	ErrRangeInvalid = errors.New("slice range invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrMeshInvalid: 模型文件无法解析或几何退化。
	ErrMeshInvalid = errors.New("mesh invalid")
)
