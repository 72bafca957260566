package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects under a directory that the HTTP server exposes
// at /uploads.
type LocalStorage struct {
	dir     string
	baseURL string
}

func NewLocalStorage(dir, publicBaseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *LocalStorage) Dir() string { return s.dir }

func (s *LocalStorage) path(objectName string) (string, error) {
	clean := filepath.Clean("/" + objectName)
	if clean == "/" {
		return "", fmt.Errorf("invalid object name %q", objectName)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) Put(_ context.Context, objectName, _ string, r io.Reader, _ int64) (string, error) {
	path, err := s.path(objectName)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrUpload, objectName, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: write %s: %w", ErrUpload, objectName, err)
	}
	return s.baseURL + "/uploads/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+objectName)), "/"), nil
}

func (s *LocalStorage) Remove(_ context.Context, objectName string) error {
	path, err := s.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
