package contract

import "fmt"

// 校验库函数（纯函数，无 I/O）：
// - ValidateSequence: 贴板后的切片序列，要求序号自 0 连续、高度单调不减
// - Skeleton.Validate: 五张表与 Outlines 等长，网格坐标升序
func ValidateSequence(slices []SliceData) error {
	if len(slices) == 0 {
		return ErrInvalidInput
	}
	prev := slices[0].Height
	for i := range slices {
		s := &slices[i]
		if s.Index != i {
			return fmt.Errorf("%w: slice at %d carries index %d", ErrInvariantViolation, i, s.Index)
		}
		if s.Height < prev {
			return fmt.Errorf("%w: height decreases at %d (%g < %g)", ErrInvariantViolation, i, s.Height, prev)
		}
		prev = s.Height
	}
	return nil
}

// ValidateHeights 仅校验高度单调不减（允许序号不连续，例如部分区间生产后的全量向量中的已生产项）。
func ValidateHeights(slices []SliceData) error {
	for i := 1; i < len(slices); i++ {
		if slices[i].Height < slices[i-1].Height {
			return fmt.Errorf("%w: height decreases at %d", ErrInvariantViolation, i)
		}
	}
	return nil
}

// Validate 检查骨架各表按层对齐。
func (s *Skeleton) Validate() error {
	if s == nil {
		return ErrInvalidInput
	}
	n := len(s.Outlines)
	if n == 0 {
		return fmt.Errorf("%w: skeleton has no slices", ErrInvalidInput)
	}
	tables := []struct {
		name string
		size int
	}{
		{"insets", len(s.Insets)},
		{"flat_surfaces", len(s.FlatSurfaces)},
		{"roofings", len(s.Roofings)},
		{"floorings", len(s.Floorings)},
		{"infills", len(s.Infills)},
	}
	for _, t := range tables {
		if t.size != n {
			return fmt.Errorf("%w: skeleton table %s has %d entries, want %d", ErrInvariantViolation, t.name, t.size, n)
		}
	}
	return s.Grid.Validate()
}

// Validate 检查网格坐标严格升序。
func (g Grid) Validate() error {
	for i := 1; i < len(g.XValues); i++ {
		if g.XValues[i] <= g.XValues[i-1] {
			return fmt.Errorf("%w: grid x values not ascending at %d", ErrInvariantViolation, i)
		}
	}
	for i := 1; i < len(g.YValues); i++ {
		if g.YValues[i] <= g.YValues[i-1] {
			return fmt.Errorf("%w: grid y values not ascending at %d", ErrInvariantViolation, i)
		}
	}
	return nil
}
