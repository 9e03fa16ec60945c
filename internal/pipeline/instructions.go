package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"slicepath/internal/diag"
	"slicepath/pkg/contract"
)

// WriteInstructions 将切片序列流式写成一份指令文件：
// 一次 header（label 为模型来源），随后每层一个块，最后可选 footer。
// 任一步失败时以 CloseWithError 中止管道，Writer 丢弃未完成产物。
func WriteInstructions(ctx context.Context, dest contract.ArtifactID, label string, slices []contract.SliceData,
	iw contract.InstructionWriter, w contract.Writer, progress contract.Progress, logger *diag.Logger) error {
	if len(slices) == 0 {
		return fmt.Errorf("%w: no slices to write", contract.ErrInvalidInput)
	}
	if strings.TrimSpace(string(dest)) == "" || label == "" {
		return fmt.Errorf("%w: destination and model label are required", contract.ErrInvalidInput)
	}
	if iw == nil || w == nil {
		return fmt.Errorf("%w: instruction writer and artifact writer are required", contract.ErrInvalidInput)
	}
	progress = contract.OrNop(progress)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := w.Write(ctx, dest, pr)
		// 读端提前结束时解除生产端阻塞
		_ = pr.CloseWithError(err)
		done <- err
	}()

	perr := emit(pw, label, slices, iw, progress)
	if perr != nil {
		_ = pw.CloseWithError(perr)
	} else {
		_ = pw.Close()
	}
	werr := <-done

	// 写端先失败时，生产端错误只是其回声
	if werr != nil && (perr == nil || errors.Is(perr, werr)) {
		return fmt.Errorf("open %s: %w", dest, werr)
	}
	if perr != nil {
		logger.ErrorWithKV("instructions", string(diag.Classify(perr)), "emit failed", nil, diag.KV{"dest": string(dest)})
		return fmt.Errorf("emit instructions: %w", perr)
	}
	return nil
}

func emit(pw io.Writer, label string, slices []contract.SliceData, iw contract.InstructionWriter, progress contract.Progress) error {
	bw := bufio.NewWriterSize(pw, 64*1024)
	if err := iw.WriteHeader(bw, label); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	progress.Reset(len(slices), "Gcoding")
	for i := range slices {
		progress.Tick()
		if err := iw.WriteSlice(bw, &slices[i]); err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
	}
	if f, ok := iw.(contract.InstructionFinisher); ok {
		if err := f.WriteFooter(bw); err != nil {
			return fmt.Errorf("footer: %w", err)
		}
	}
	return bw.Flush()
}
