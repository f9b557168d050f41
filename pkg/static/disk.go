package static

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskSource serves files from a directory on the local filesystem.
type DiskSource struct {
	root string
}

// NewDiskSource creates a source rooted at dir. The directory must exist.
func NewDiskSource(dir string) (*DiskSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrInvalid}
	}
	return &DiskSource{root: dir}, nil
}

// Open implements Source.
func (s *DiskSource) Open(_ context.Context, name string) (io.ReadCloser, FileInfo, error) {
	path := filepath.Join(s.root, filepath.FromSlash(name))

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, FileInfo{}, ErrNotFound
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, FileInfo{}, ErrNotFound
	}
	return f, FileInfo{Size: info.Size()}, nil
}
