// Package vectorstore fronts the similarity index that holds embedded
// chunks. Backends live in subpackages; the Gateway adds collection
// bootstrapping, validation and error classification on top of them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnavailable wraps every failure reported by a backend.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrDimensionMismatch means a vector, or the existing collection, does
	// not have the configured dimension. It is a configuration error.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrAlreadyExists is returned by backends when a concurrent creator won.
	ErrAlreadyExists = errors.New("collection already exists")
	ErrInvalidFilter = errors.New("invalid payload filter")
)

// Payload keys stored with every point.
const (
	KeyText       = "text"
	KeySource     = "source"
	KeyUserID     = "user_id"
	KeyFileType   = "file_type"
	KeyFileName   = "file_name"
	KeyChunkIndex = "chunk_index"
)

// Payload is the metadata attached to an indexed chunk.
type Payload struct {
	Text       string
	Source     string
	UserID     string
	FileType   string
	FileName   string
	ChunkIndex int
}

// Map returns the payload keyed by the stored field names.
func (p Payload) Map() map[string]any {
	return map[string]any{
		KeyText:       p.Text,
		KeySource:     p.Source,
		KeyUserID:     p.UserID,
		KeyFileType:   p.FileType,
		KeyFileName:   p.FileName,
		KeyChunkIndex: p.ChunkIndex,
	}
}

type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type ScoredPoint struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter is an AND of payload equality conditions.
type Filter map[string]string

var filterableKeys = map[string]bool{
	KeySource:   true,
	KeyUserID:   true,
	KeyFileType: true,
	KeyFileName: true,
}

// OwnerFilter restricts a search to one owner's chunks.
func OwnerFilter(userID string) Filter {
	return Filter{KeyUserID: userID}
}

// Validate rejects keys that are not indexed for filtering.
func (f Filter) Validate() error {
	for k := range f {
		if !filterableKeys[k] {
			return fmt.Errorf("%w: key %q", ErrInvalidFilter, k)
		}
	}
	return nil
}

// Keys returns the filter keys in a stable order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Backend is implemented by each concrete index. Errors are returned raw;
// the Gateway classifies them.
type Backend interface {
	Name() string
	CollectionExists(ctx context.Context, collection string) (bool, error)
	// CollectionDimension reports the vector size of an existing collection,
	// or 0 if the backend cannot tell.
	CollectionDimension(ctx context.Context, collection string) (int, error)
	CreateCollection(ctx context.Context, collection string, dimension int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]ScoredPoint, error)
	Delete(ctx context.Context, collection string, filter Filter) error
	Close() error
}
