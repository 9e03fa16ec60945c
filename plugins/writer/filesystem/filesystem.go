// Package filesystem 提供落盘型工件 Writer：指令文件与调试转储共用。
package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"slicepath/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Root: 写出根目录（必需）。首次写入或 EnsureRoot 时按需创建。
	Root string `json:"root"`
	// Atomic: 同目录临时文件 + rename。默认 true；显式 false 则覆盖写。
	// 原子写是“全有或全无”语义的基础：上游读错误时目标文件保持原状。
	Atomic *bool `json:"atomic,omitempty"`
	// Nested: 保留 ArtifactID 中的子目录层级。默认 false（仅取文件名）。
	Nested bool `json:"nested,omitempty"`
	// PermFile/PermDir: 为 0 时使用 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲；<=0 使用 64KiB。
	BufSize int `json:"buf_size,omitempty"`
	// NoSync: 跳过 fsync（调试转储等可丢失产物使用）。
	NoSync bool `json:"no_sync,omitempty"`
}

// Store: 以目录为根的工件存储。
type Store struct {
	root    string
	atomic  bool
	nested  bool
	sync    bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer。
func New(opts *Options) (*Store, error) {
	if opts == nil || strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("%w: writer root is required", contract.ErrInvalidInput)
	}
	s := &Store{
		root:    opts.Root,
		atomic:  true,
		nested:  opts.Nested,
		sync:    !opts.NoSync,
		permF:   0o644,
		permD:   0o755,
		bufSize: 64 * 1024,
	}
	if opts.Atomic != nil {
		s.atomic = *opts.Atomic
	}
	if opts.PermFile != 0 {
		s.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		s.permD = opts.PermDir
	}
	if opts.BufSize > 0 {
		s.bufSize = opts.BufSize
	}
	return s, nil
}

var _ contract.Writer = (*Store)(nil)

// Root 返回写出根目录。
func (s *Store) Root() string { return s.root }

// EnsureRoot 幂等创建根目录；已存在的目录不报错，同名非目录报错。
func (s *Store) EnsureRoot() error {
	if err := os.MkdirAll(s.root, s.permD); err != nil {
		return fmt.Errorf("create %s: %w", s.root, err)
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", contract.ErrPathInvalid, s.root)
	}
	return nil
}

// Write 将 r 的全部字节写入 id 映射的目标路径。
func (s *Store) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), s.permD); err != nil {
		return err
	}
	src := &ctxReader{ctx: ctx, r: r}
	if s.atomic {
		return s.replace(dest, src)
	}
	return s.overwrite(dest, src)
}

// resolve: Clean + Join + 越界校验。
func (s *Store) resolve(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if !s.nested {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", contract.ErrPathInvalid
		}
		return filepath.Join(s.root, rel), nil
	}
	switch {
	case rel == "." || rel == "":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(s.root, rel), nil
}

func (s *Store) overwrite(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, s.permF)
	if err != nil {
		return err
	}
	if err := s.fill(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) replace(dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()
	_ = os.Chmod(tmpPath, s.permF)

	if err = s.fill(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = replaceFile(tmpPath, dest); err != nil {
		return err
	}
	if s.sync {
		_ = syncParent(dir)
	}
	return nil
}

// fill: 缓冲拷贝 + 可选 fsync。
func (s *Store) fill(f *os.File, r io.Reader) error {
	bw := bufio.NewWriterSize(f, s.bufSize)
	if _, err := io.Copy(bw, r); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if s.sync {
		return f.Sync()
	}
	return nil
}

// ctxReader: 每次 Read 前检查取消。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// IsPathInvalid 便于调用方判定映射失败。
func IsPathInvalid(err error) bool { return errors.Is(err, contract.ErrPathInvalid) }
