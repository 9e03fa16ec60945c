//go:build !windows

package filesystem

import "os"

// replaceFile: POSIX rename 为原子替换。
func replaceFile(tmpPath, dest string) error {
	return os.Rename(tmpPath, dest)
}

// syncParent 尽力 fsync 父目录，持久化目录项。
func syncParent(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
