// Package extractor turns uploaded binary documents into normalized text:
// Markdown tables for spreadsheets, Markdown for word-processor documents
// and plain text for PDFs.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrExtraction        = errors.New("text extraction failed")
)

// Kind is the closed set of document families the pipeline understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindSpreadsheet
	KindWord
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindSpreadsheet:
		return "spreadsheet"
	case KindWord:
		return "word"
	case KindPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// Extractor converts one family of documents to text.
type Extractor interface {
	Kind() Kind
	Extensions() []string
	Extract(ctx context.Context, content []byte, filename string) (string, error)
}

// ImageUploader re-hosts images found inside documents and returns the URL
// the rewritten reference should point to.
type ImageUploader interface {
	UploadImage(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// Registry dispatches on file extension.
type Registry struct {
	byKind map[Kind]Extractor
	byExt  map[string]Kind
}

func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{
		byKind: make(map[Kind]Extractor, len(extractors)),
		byExt:  make(map[string]Kind),
	}
	for _, e := range extractors {
		r.byKind[e.Kind()] = e
		for _, ext := range e.Extensions() {
			r.byExt[ext] = e.Kind()
		}
	}
	return r
}

// KindOf reports the document kind for filename, KindUnknown if no
// extractor is registered for its extension.
func (r *Registry) KindOf(filename string) Kind {
	return r.byExt[Ext(filename)]
}

// Resolve returns the extractor for filename.
func (r *Registry) Resolve(filename string) (Kind, Extractor, bool) {
	kind := r.KindOf(filename)
	e, ok := r.byKind[kind]
	if !ok {
		return KindUnknown, nil, false
	}
	return kind, e, true
}

// Ext returns the lower-cased extension of filename including the dot.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// FileType is the extension without the leading dot, used as the file-type
// tag on indexed chunks.
func FileType(filename string) string {
	return strings.TrimPrefix(Ext(filename), ".")
}

func checkExtension(filename string, allowed []string) error {
	ext := Ext(filename)
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func extractionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}
