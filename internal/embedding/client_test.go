package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// newServer answers every input i with the vector [i, i, ...] and returns the
// items in reverse order.
func newServer(t *testing.T, dim int, calls *int) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		*calls++
		mu.Unlock()

		items := make([]embeddingItem, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(i)
			}
			items = append(items, embeddingItem{Object: "embedding", Embedding: vec, Index: i})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   items,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newTestClient(url string, dim int) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: url, Model: "test-embed", Dimension: dim}, zap.NewNop())
}

func TestClient_Embed(t *testing.T) {
	calls := 0
	srv := newServer(t, 4, &calls)
	defer srv.Close()

	vec, err := newTestClient(srv.URL, 4).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, vec)
	assert.Equal(t, 1, calls)
}

func TestClient_EmbedBatch_PreservesOrder(t *testing.T) {
	calls := 0
	srv := newServer(t, 3, &calls)
	defer srv.Close()

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := newTestClient(srv.URL, 3).EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i), float32(i), float32(i)}, v)
	}
	assert.Equal(t, 1, calls)
}

func TestClient_EmbedBatch_Empty(t *testing.T) {
	vectors, err := newTestClient("http://127.0.0.1:0", 3).EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestClient_DimensionMismatch(t *testing.T) {
	calls := 0
	srv := newServer(t, 8, &calls)
	defer srv.Close()

	_, err := newTestClient(srv.URL, 4).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestClient_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "api error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			},
		},
		{
			name: "detail body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"detail":"model loading"}`))
			},
		},
		{
			name: "short response",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL, 4).Embed(context.Background(), "hello")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEmbeddingService), err.Error())
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, 4).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingService))
}

func TestClient_LazyHandleShared(t *testing.T) {
	c := newTestClient("http://example.invalid", 4)
	assert.Nil(t, c.client)

	var wg sync.WaitGroup
	handles := make([]any, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.api()
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}
