package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"rag-kb/internal/models"
	"rag-kb/internal/repository"
	"rag-kb/internal/vectorstore"
	"rag-kb/internal/vectorstore/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	err       error
	removeErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Put(_ context.Context, objectName, _ string, r io.Reader, _ int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return "http://objects.test/kb/" + objectName, nil
}

func (s *fakeObjectStore) Remove(_ context.Context, objectName string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

type fakeDocuments struct {
	mu   sync.Mutex
	docs map[string]*models.Document // key: user_id/file_name
	err  error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{docs: make(map[string]*models.Document)}
}

func (f *fakeDocuments) Upsert(_ context.Context, doc *models.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := doc.UserID.String() + "/" + doc.FileName
	var previousURL string
	if existing, ok := f.docs[key]; ok {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		previousURL = existing.FileURL
	}
	stored := *doc
	f.docs[key] = &stored
	return previousURL, nil
}

func (f *fakeDocuments) GetByID(_ context.Context, id, userID uuid.UUID) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ID == id && d.UserID == userID {
			return d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDocuments) ListByUserID(_ context.Context, userID uuid.UUID, _, _ int) ([]*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeKnowledge struct {
	mu    sync.Mutex
	items []*models.KnowledgeItem
	err   error
}

func (f *fakeKnowledge) Create(_ context.Context, item *models.KnowledgeItem) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return nil
}

func (f *fakeKnowledge) ListByUserID(_ context.Context, userID uuid.UUID, _, _ int) ([]*models.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.KnowledgeItem
	for _, it := range f.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []*models.ChatHistory
	err     error
}

func (f *fakeHistory) Create(_ context.Context, entry *models.ChatHistory) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistory) ListBySession(_ context.Context, userID uuid.UUID, sessionID string) ([]*models.ChatHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ChatHistory
	for _, e := range f.entries {
		if e.UserID == userID && e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeEmbedder returns the same unit vector for every text, so every stored
// chunk is an equally good match. failAt makes the n-th call (1-based) fail.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	failAt int
	err    error
}

const testDimension = 3

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil || (e.failAt > 0 && e.calls == e.failAt) {
		if e.err != nil {
			return nil, e.err
		}
		return nil, errors.New("embedding service error: 503")
	}
	return []float32{1, 0, 0}, nil
}

type fakeCompleter struct {
	systemPrompt   string
	contextMessage string
	userMessage    string
	calls          int
	answer         string
	err            error
}

func (c *fakeCompleter) Complete(_ context.Context, systemPrompt, contextMessage, userMessage string) (string, error) {
	c.calls++
	c.systemPrompt = systemPrompt
	c.contextMessage = contextMessage
	c.userMessage = userMessage
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *fakeCompleter) Close() error { return nil }

type failingIndex struct{ err error }

func (f failingIndex) Upsert(context.Context, []vectorstore.Point) error { return f.err }

func (f failingIndex) Search(context.Context, []float32, int, vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	return nil, f.err
}

func (f failingIndex) Delete(context.Context, vectorstore.Filter) error { return f.err }

func newTestIndex() (*vectorstore.Gateway, *memory.Store) {
	store := memory.New()
	return vectorstore.NewGateway(store, "test", testDimension, zap.NewNop()), store
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// buildDocx returns a minimal .docx with one paragraph per entry.
func buildDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` +
		body.String() + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
