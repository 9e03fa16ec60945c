// Package stl 实现 MeshReader：读取二进制/ASCII STL，落板并按层分桶。
package stl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"slicepath/pkg/contract"
)

// Options: STL 读取选项。
type Options struct {
	// BufSize: 读缓冲（字节），默认 64KiB。
	BufSize int `json:"buf_size"`
	// KeepZ: 为 true 时不落板（保留原始 Z，低于 0 的部分不会出现在任何层）。
	KeepZ bool `json:"keep_z"`
	// Scale: 统一缩放系数；0 视为 1。
	Scale float64 `json:"scale"`
}

// Reader: STL MeshReader。
type Reader struct {
	bufSize int
	keepZ   bool
	scale   float64
	measure contract.LayerMeasure
}

// New 创建 Reader；measure 决定分桶高度。
func New(opts *Options, measure contract.LayerMeasure) (*Reader, error) {
	if measure.LayerH <= 0 {
		return nil, fmt.Errorf("%w: layer height must be > 0", contract.ErrInvalidInput)
	}
	r := &Reader{bufSize: 64 * 1024, scale: 1, measure: measure}
	if opts != nil {
		if opts.BufSize > 0 {
			// 至少容纳 84 字节头部用于格式识别
			r.bufSize = max(opts.BufSize, 4096)
		}
		if opts.Scale < 0 {
			return nil, fmt.Errorf("%w: scale must be >= 0", contract.ErrInvalidInput)
		}
		if opts.Scale > 0 {
			r.scale = opts.Scale
		}
		r.keepZ = opts.KeepZ
	}
	return r, nil
}

var _ contract.MeshReader = (*Reader)(nil)

// Read 读取模型文件并构建 Mesh。
func (r *Reader) Read(ctx context.Context, modelPath string) (*contract.Mesh, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, fmt.Errorf("%w: empty model path", contract.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(modelPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	tris, err := Decode(bufio.NewReaderSize(f, r.bufSize), info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}
	return r.Build(tris)
}

// Build 对三角形做缩放/落板，并按层分桶。
func (r *Reader) Build(tris []contract.Triangle) (*contract.Mesh, error) {
	if len(tris) == 0 {
		return nil, fmt.Errorf("%w: no triangles", contract.ErrMeshInvalid)
	}
	if r.scale != 1 {
		for i := range tris {
			for k := range tris[i] {
				tris[i][k] = r3.Scale(r.scale, tris[i][k])
			}
		}
	}
	box := bounds(tris)
	if !r.keepZ && box.Min.Z != 0 {
		shift := r3.Vec{Z: -box.Min.Z}
		for i := range tris {
			for k := range tris[i] {
				tris[i][k] = r3.Add(tris[i][k], shift)
			}
		}
		box = box.Add(shift)
	}

	count := r.measure.HeightToSliceIndex(box.Max.Z) + 1
	if count <= 0 {
		return nil, fmt.Errorf("%w: model height %g below first layer %g", contract.ErrMeshInvalid, box.Max.Z, r.measure.FirstZ)
	}
	table := make([]contract.TriangleIndices, count)
	for ti, t := range tris {
		lo := math.Min(t[0].Z, math.Min(t[1].Z, t[2].Z))
		hi := math.Max(t[0].Z, math.Max(t[1].Z, t[2].Z))
		first := r.measure.HeightToSliceIndex(lo)
		if first < 0 || r.measure.SliceIndexToHeight(first) < lo {
			first++
		}
		last := r.measure.HeightToSliceIndex(hi)
		if last >= count {
			last = count - 1
		}
		for i := first; i <= last; i++ {
			table[i] = append(table[i], ti)
		}
	}
	return &contract.Mesh{Triangles: tris, SliceTable: table, Limits: box, Measure: r.measure}, nil
}

func bounds(tris []contract.Triangle) r3.Box {
	inf := math.Inf(1)
	b := r3.Box{Min: r3.Vec{X: inf, Y: inf, Z: inf}, Max: r3.Vec{X: -inf, Y: -inf, Z: -inf}}
	for _, t := range tris {
		for _, v := range t {
			b.Min = r3.Vec{X: math.Min(b.Min.X, v.X), Y: math.Min(b.Min.Y, v.Y), Z: math.Min(b.Min.Z, v.Z)}
			b.Max = r3.Vec{X: math.Max(b.Max.X, v.X), Y: math.Max(b.Max.Y, v.Y), Z: math.Max(b.Max.Z, v.Z)}
		}
	}
	return b
}

const (
	headerLen  = 80
	facetBytes = 50
)

// Decode 自动识别二进制/ASCII。size<0 表示未知长度（仅按内容判定）。
func Decode(br *bufio.Reader, size int64) ([]contract.Triangle, error) {
	head, err := br.Peek(headerLen + 4)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	if len(head) >= headerLen+4 {
		n := int64(binary.LittleEndian.Uint32(head[headerLen:]))
		if size >= 0 && size == headerLen+4+n*facetBytes {
			return decodeBinary(br, size)
		}
	}
	if bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n"), []byte("solid")) {
		return decodeASCII(br)
	}
	if len(head) >= headerLen+4 {
		return decodeBinary(br, size)
	}
	return nil, fmt.Errorf("%w: unrecognised stl", contract.ErrMeshInvalid)
}

// maxPrealloc 限制按头部计数预分配的三角形数；计数来自不可信输入。
const maxPrealloc = 1 << 16

// decodeBinary 读取二进制 STL。size>=0 时要求与头部计数一致。
func decodeBinary(r io.Reader, size int64) ([]contract.Triangle, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", contract.ErrMeshInvalid, err)
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: facet count: %v", contract.ErrMeshInvalid, err)
	}
	if size >= 0 && size != headerLen+4+int64(n)*facetBytes {
		return nil, fmt.Errorf("%w: facet count %d does not match file size %d", contract.ErrMeshInvalid, n, size)
	}
	tris := make([]contract.Triangle, 0, min(int64(n), maxPrealloc))
	var rec [facetBytes]byte
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, fmt.Errorf("%w: facet %d: %v", contract.ErrMeshInvalid, i, err)
		}
		var t contract.Triangle
		for k := 0; k < 3; k++ {
			off := 12 + k*12 // 跳过法向
			t[k] = r3.Vec{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:]))),
			}
		}
		tris = append(tris, t)
	}
	return tris, nil
}

func decodeASCII(r io.Reader) ([]contract.Triangle, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var (
		tris []contract.Triangle
		cur  contract.Triangle
		nv   int
		line int
	)
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "facet":
			nv = 0
		case "vertex":
			if len(fields) != 4 || nv >= 3 {
				return nil, fmt.Errorf("%w: line %d: bad vertex", contract.ErrMeshInvalid, line)
			}
			var xyz [3]float64
			for k := 0; k < 3; k++ {
				v, err := strconv.ParseFloat(fields[k+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", contract.ErrMeshInvalid, line, err)
				}
				xyz[k] = v
			}
			cur[nv] = r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
			nv++
		case "endfacet":
			if nv != 3 {
				return nil, fmt.Errorf("%w: line %d: facet with %d vertices", contract.ErrMeshInvalid, line, nv)
			}
			tris = append(tris, cur)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tris, nil
}

// EncodeBinary 写出二进制 STL（测试夹具与工具使用）。
func EncodeBinary(w io.Writer, tris []contract.Triangle) error {
	var hdr [headerLen]byte
	copy(hdr[:], "slicepath")
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tris))); err != nil {
		return err
	}
	var rec [facetBytes]byte
	for _, t := range tris {
		for i := range rec {
			rec[i] = 0
		}
		for k := 0; k < 3; k++ {
			off := 12 + k*12
			binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(float32(t[k].X)))
			binary.LittleEndian.PutUint32(rec[off+4:], math.Float32bits(float32(t[k].Y)))
			binary.LittleEndian.PutUint32(rec[off+8:], math.Float32bits(float32(t[k].Z)))
		}
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

// Cube 生成轴对齐长方体 [0,sx]×[0,sy]×[0,sz] 的 12 个三角形（外法向、逆时针）。
func Cube(sx, sy, sz float64) []contract.Triangle {
	v := func(x, y, z float64) r3.Vec { return r3.Vec{X: x * sx, Y: y * sy, Z: z * sz} }
	quads := [][4]r3.Vec{
		{v(0, 0, 0), v(0, 1, 0), v(1, 1, 0), v(1, 0, 0)},
		{v(0, 0, 1), v(1, 0, 1), v(1, 1, 1), v(0, 1, 1)},
		{v(0, 0, 0), v(1, 0, 0), v(1, 0, 1), v(0, 0, 1)},
		{v(1, 0, 0), v(1, 1, 0), v(1, 1, 1), v(1, 0, 1)},
		{v(1, 1, 0), v(0, 1, 0), v(0, 1, 1), v(1, 1, 1)},
		{v(0, 1, 0), v(0, 0, 0), v(0, 0, 1), v(0, 1, 1)},
	}
	out := make([]contract.Triangle, 0, 12)
	for _, q := range quads {
		out = append(out, contract.Triangle{q[0], q[1], q[2]}, contract.Triangle{q[0], q[2], q[3]})
	}
	return out
}
