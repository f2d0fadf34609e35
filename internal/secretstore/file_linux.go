//go:build linux

package secretstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

func init() {
	if home, err := os.UserHomeDir(); err == nil {
		Default = NewFileStore(filepath.Join(home, ".devxfer", "secrets"))
	}
}

type fileStore struct{ dir string }

// NewFileStore keeps one 0600 file per secret under dir.
func NewFileStore(dir string) Store { return fileStore{dir: dir} }

func (f fileStore) path(name string) string {
	return filepath.Join(f.dir, filepath.Base(name))
}

func (f fileStore) Put(n string, d []byte) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("failed to create secret dir: %w", err)
	}
	return os.WriteFile(f.path(n), d, 0600)
}

func (f fileStore) Get(n string) ([]byte, error) {
	d, err := os.ReadFile(f.path(n))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return d, err
}

func (f fileStore) Delete(n string) error {
	err := os.Remove(f.path(n))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
