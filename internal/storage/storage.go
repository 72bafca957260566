// Package storage persists uploaded files and embedded document images and
// hands back the URL they are reachable at.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUpload = errors.New("object storage upload failed")

// ObjectStorage is implemented by the MinIO and local-disk backends.
// Removing a missing object is not an error.
type ObjectStorage interface {
	Put(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (string, error)
	Remove(ctx context.Context, objectName string) error
}

// ObjectName returns a fresh collision-free name that keeps the original
// extension, e.g. "3f0c...e1.docx".
func ObjectName(filename string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

// ObjectNameFromURL recovers the name of an upload from the URL Put
// returned for it. Uploads are stored flat, so the name is the last path
// element.
func ObjectNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// ImageUploader adapts an ObjectStorage to the extractor's image hook.
type ImageUploader struct {
	Storage ObjectStorage
}

func (u ImageUploader) UploadImage(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	return u.Storage.Put(ctx, objectName, contentType, bytes.NewReader(data), int64(len(data)))
}
