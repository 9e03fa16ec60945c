package pipeline

import (
	"fmt"
	"strconv"

	"slicepath/internal/diag"
	"slicepath/pkg/contract"
)

// PlateBounds 选择贴板区间的端点解析方式。
type PlateBounds string

const (
	// PlateBoundsStrict: 与 ResolveRange 一致（-1 → 域端点）。
	PlateBoundsStrict PlateBounds = "strict"
	// PlateBoundsLiteral: 历史解析：First=-1 → len；Last=-1 或 Last ≤ len → len-1。
	// 默认区间在此模式下必然被 CheckRange 拒绝。
	PlateBoundsLiteral PlateBounds = "literal"
)

// ParsePlateBounds 空串取 strict。
func ParsePlateBounds(s string) (PlateBounds, error) {
	switch PlateBounds(s) {
	case "", PlateBoundsStrict:
		return PlateBoundsStrict, nil
	case PlateBoundsLiteral:
		return PlateBoundsLiteral, nil
	}
	return "", fmt.Errorf("%w: plate bounds %q", contract.ErrInvalidInput, s)
}

// ResolvePlateRange 按模式解析贴板区间（不做越界检查）。
func ResolvePlateRange(r contract.SliceRange, n int, mode PlateBounds) (first, last int) {
	if mode != PlateBoundsLiteral {
		return ResolveRange(r, n)
	}
	switch {
	case r.First == -1:
		first = n
	case r.First > 0:
		first = r.First
	}
	if r.Last == -1 || r.Last <= n {
		last = n - 1
	} else {
		last = r.Last
	}
	return first, last
}

// AdjustToPlate 截取 [first,last] 并重新锚定到打印平台：
// 保留的第 k 层序号为 k、高度为 m.SliceIndexToHeight(k)。
// 区间非法时返回 ErrRangeInvalid，输入保持不变。
func AdjustToPlate(slices []contract.SliceData, m contract.LayerMeasure, r contract.SliceRange, mode PlateBounds, logger *diag.Logger) ([]contract.SliceData, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("%w: no slices to adjust", contract.ErrInvalidInput)
	}
	first, last := ResolvePlateRange(r, len(slices), mode)
	logger.Debug("plate", "range", diag.KV{
		"first": strconv.Itoa(first), "last": strconv.Itoa(last), "mode": string(mode),
	})
	if err := CheckRange(first, last, len(slices)); err != nil {
		return nil, err
	}
	for i, k := first, 0; i <= last; i, k = i+1, k+1 {
		slices[i].UpdatePosition(m.SliceIndexToHeight(k), k)
	}
	out := slices[first : last+1 : last+1]
	if err := contract.ValidateSequence(out); err != nil {
		return nil, err
	}
	return out, nil
}
