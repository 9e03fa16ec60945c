package contract

import "context"

// MeshReader: 模型加载与按层分桶。
// 约束：
//  1. 返回的 Mesh.SliceTable 长度即层数（切片总数在生产开始前固定）；
//  2. 不做修复/校验以外的几何处理；
//  3. 不在内部起并发。
type MeshReader interface {
	Read(ctx context.Context, modelPath string) (*Mesh, error)
}
