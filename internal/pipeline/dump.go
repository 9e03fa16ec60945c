package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"slicepath/pkg/contract"
)

// rootEnsurer: 能幂等创建根目录的 Writer（例如文件系统 Writer）。
type rootEnsurer interface {
	EnsureRoot() error
}

// DumpName 返回序列第 i 个位置的转储文件名。
// i 是序列位置，不一定等于切片自身的 Index。
func DumpName(i int) contract.ArtifactID {
	return contract.ArtifactID(fmt.Sprintf("slice_%d.json", i))
}

// DumpSlices 将每层编码为规范 JSON，写成 slice_<i>.json。
func DumpSlices(ctx context.Context, slices []contract.SliceData, w contract.Writer) error {
	if w == nil {
		return fmt.Errorf("%w: dump writer is required", contract.ErrInvalidInput)
	}
	if re, ok := w.(rootEnsurer); ok {
		if err := re.EnsureRoot(); err != nil {
			return fmt.Errorf("dump dir: %w", err)
		}
	}
	for i := range slices {
		b, err := contract.EncodeSlice(&slices[i])
		if err != nil {
			return fmt.Errorf("encode slice %d: %w", i, err)
		}
		if err := w.Write(ctx, DumpName(i), bytes.NewReader(b)); err != nil {
			return fmt.Errorf("dump slice %d: %w", i, err)
		}
	}
	return nil
}
