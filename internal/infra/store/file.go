// Package store persists the user settings blob as a JSON file.
package store

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// FileBlob stores the settings blob in a single file. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so readers never observe a partial blob.
type FileBlob struct {
	path string
}

// NewFileBlob creates a blob backed by path. The parent directory is created
// on first save.
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: path}
}

// Path returns the backing file path.
func (b *FileBlob) Path() string {
	return b.path
}

// Load returns the stored blob, or nil when the file does not exist.
func (b *FileBlob) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", b.path)
	}
	return data, nil
}

// Save atomically replaces the stored blob.
func (b *FileBlob) Save(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", b.path)
	}
	return nil
}
