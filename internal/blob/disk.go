package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dkeye/roomcast/internal/core"
)

// Disk stores blobs as files in one directory.
type Disk struct {
	dir string
}

var _ core.BlobStore = (*Disk)(nil)

func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) Put(_ context.Context, data []byte) (string, error) {
	name := newName()
	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return name, nil
}

func (d *Disk) Get(_ context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
