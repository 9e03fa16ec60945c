package pipeline

import (
	"fmt"

	"slicepath/pkg/contract"
)

// ResolveRange 将哨兵 -1 解析为域端点：First=-1 → 0，Last=-1 → n-1。
// 不做越界检查；需要时调用 CheckRange。
func ResolveRange(r contract.SliceRange, n int) (first, last int) {
	first, last = r.First, r.Last
	if first == -1 {
		first = 0
	}
	if last == -1 {
		last = n - 1
	}
	return first, last
}

// CheckRange 要求 0 ≤ first ≤ last < n。
func CheckRange(first, last, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: empty slice domain", contract.ErrRangeInvalid)
	}
	if first < 0 || last < first || last >= n {
		return fmt.Errorf("%w: [%d,%d] outside [0,%d)", contract.ErrRangeInvalid, first, last, n)
	}
	return nil
}
