package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes artifacts under a directory on disk.
type LocalStorage struct {
	Dir string
}

func NewLocalStorage(dir string) *LocalStorage {
	if dir == "" {
		dir = "exports"
	}
	return &LocalStorage{Dir: dir}
}

// Upload writes body to Dir/objectKey and returns a file:// URL.
func (l *LocalStorage) Upload(_ context.Context, objectKey, _ string, body []byte) (string, error) {
	clean := filepath.Clean("/" + objectKey)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	path := filepath.Join(l.Dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs), nil
}
