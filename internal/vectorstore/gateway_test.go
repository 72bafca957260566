package vectorstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"rag-kb/internal/vectorstore"
	"rag-kb/internal/vectorstore/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingBackend wraps the memory store and records calls.
type countingBackend struct {
	*memory.Store
	creates  atomic.Int32
	failWith error
	dim      int
}

func (b *countingBackend) CreateCollection(ctx context.Context, name string, dim int) error {
	b.creates.Add(1)
	return b.Store.CreateCollection(ctx, name, dim)
}

func (b *countingBackend) CollectionExists(ctx context.Context, name string) (bool, error) {
	if b.failWith != nil {
		return false, b.failWith
	}
	return b.Store.CollectionExists(ctx, name)
}

func (b *countingBackend) CollectionDimension(ctx context.Context, name string) (int, error) {
	if b.dim != 0 {
		return b.dim, nil
	}
	return b.Store.CollectionDimension(ctx, name)
}

func newGateway(b vectorstore.Backend) *vectorstore.Gateway {
	return vectorstore.NewGateway(b, "kb", 3, zap.NewNop())
}

func point(id, owner, file string, vec ...float32) vectorstore.Point {
	return vectorstore.Point{
		ID:     id,
		Vector: vec,
		Payload: vectorstore.Payload{
			Text:     "text of " + id,
			Source:   "https://files/" + file,
			UserID:   owner,
			FileType: "docx",
			FileName: file,
		},
	}
}

func TestGateway_EnsureCollection_Once(t *testing.T) {
	b := &countingBackend{Store: memory.New()}
	g := newGateway(b)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.EnsureCollection(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.creates.Load())
}

func TestGateway_EnsureCollection_ExistingWrongDimension(t *testing.T) {
	b := &countingBackend{Store: memory.New(), dim: 8}
	require.NoError(t, b.Store.CreateCollection(context.Background(), "kb", 8))

	err := newGateway(b).EnsureCollection(context.Background())
	assert.True(t, errors.Is(err, vectorstore.ErrDimensionMismatch))
}

func TestGateway_EnsureCollection_Unavailable(t *testing.T) {
	b := &countingBackend{Store: memory.New(), failWith: errors.New("connection refused")}

	err := newGateway(b).EnsureCollection(context.Background())
	assert.True(t, errors.Is(err, vectorstore.ErrUnavailable))

	_, err = newGateway(b).Search(context.Background(), []float32{1, 0, 0}, 5, nil)
	assert.True(t, errors.Is(err, vectorstore.ErrUnavailable))
}

func TestGateway_UpsertAndSearch(t *testing.T) {
	store := memory.New()
	g := newGateway(store)
	ctx := context.Background()

	require.NoError(t, g.Upsert(ctx, []vectorstore.Point{
		point("a", "alice", "a.docx", 1, 0, 0),
		point("b", "alice", "b.docx", 0, 1, 0),
		point("c", "bob", "c.docx", 1, 0, 0),
	}))

	hits, err := g.Search(ctx, []float32{1, 0.1, 0}, 5, vectorstore.OwnerFilter("alice"))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "text of a", hits[0].Payload.Text)
	for _, h := range hits {
		assert.Equal(t, "alice", h.Payload.UserID)
	}

	// overwrite by id
	require.NoError(t, g.Upsert(ctx, []vectorstore.Point{point("a", "alice", "a2.docx", 0, 0, 1)}))
	assert.Equal(t, 3, store.Len("kb"))
}

func TestGateway_SearchEmpty(t *testing.T) {
	g := newGateway(memory.New())

	hits, err := g.Search(context.Background(), []float32{1, 0, 0}, 5, vectorstore.OwnerFilter("nobody"))
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestGateway_Validation(t *testing.T) {
	g := newGateway(memory.New())
	ctx := context.Background()

	err := g.Upsert(ctx, []vectorstore.Point{point("a", "alice", "a.docx", 1, 0)})
	assert.True(t, errors.Is(err, vectorstore.ErrDimensionMismatch))

	_, err = g.Search(ctx, []float32{1}, 5, nil)
	assert.True(t, errors.Is(err, vectorstore.ErrDimensionMismatch))

	_, err = g.Search(ctx, []float32{1, 0, 0}, 5, vectorstore.Filter{"text": "x"})
	assert.True(t, errors.Is(err, vectorstore.ErrInvalidFilter))

	err = g.Delete(ctx, nil)
	assert.True(t, errors.Is(err, vectorstore.ErrInvalidFilter))
}

func TestGateway_Delete(t *testing.T) {
	store := memory.New()
	g := newGateway(store)
	ctx := context.Background()

	require.NoError(t, g.Upsert(ctx, []vectorstore.Point{
		point("a", "alice", "a.docx", 1, 0, 0),
		point("b", "alice", "a.docx", 0, 1, 0),
		point("c", "alice", "b.docx", 0, 0, 1),
		point("d", "bob", "a.docx", 1, 0, 0),
	}))

	require.NoError(t, g.Delete(ctx, vectorstore.Filter{
		vectorstore.KeyUserID:   "alice",
		vectorstore.KeyFileName: "a.docx",
	}))
	assert.Equal(t, 2, store.Len("kb"))
}

func TestFilter_Keys(t *testing.T) {
	f := vectorstore.Filter{vectorstore.KeyUserID: "u", vectorstore.KeyFileName: "f"}
	assert.Equal(t, []string{"file_name", "user_id"}, f.Keys())
}
