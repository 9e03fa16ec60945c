package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识（相对写出根目录的路径，使用 '/' 分隔）。
type ArtifactID string

// Writer: 将工件以流式方式持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 流式写入，按字节透传，不读取/修改内容；
//  3. r 返回错误时整体失败，不得留下部分结果；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
