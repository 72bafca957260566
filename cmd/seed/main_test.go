package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rag-kb/internal/dto"
	"rag-kb/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingIngestor struct {
	mu    sync.Mutex
	calls []service.IngestRequest
	fail  map[string]bool
}

func (r *recordingIngestor) Ingest(_ context.Context, req service.IngestRequest) (*dto.UploadResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if r.fail[req.FileName] {
		return nil, errors.New("object storage down")
	}
	return &dto.UploadResponse{
		File:          dto.DocumentResponse{ID: uuid.NewString(), FileName: req.FileName},
		ChunksIndexed: 2,
	}, nil
}

func (r *recordingIngestor) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.FileName)
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newSeeder(ing ingestor, cacheFile string) *seeder {
	return &seeder{
		ingestor:  ing,
		cacheFile: cacheFile,
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestSeedDirectory_IngestsAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.docx"), "docx bytes")
	writeFile(t, filepath.Join(dir, "nested", "b.xlsx"), "xlsx bytes")
	writeFile(t, filepath.Join(dir, ".hidden"), "skip")
	writeFile(t, filepath.Join(dir, ".git", "config"), "skip")
	cacheFile := filepath.Join(dir, ".seed_cache.json")
	owner := uuid.New()

	ing := &recordingIngestor{}
	stats, err := newSeeder(ing, cacheFile).seedDirectory(context.Background(), owner, dir)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.docx", "b.xlsx"}, ing.names())
	assert.Equal(t, 2, stats.ingested)
	assert.Equal(t, 4, stats.chunks)
	for _, c := range ing.calls {
		assert.Equal(t, owner, c.UserID)
	}

	cache, err := loadCache(cacheFile)
	require.NoError(t, err)
	assert.Len(t, cache.Owners[owner.String()], 2)

	// Unchanged files are skipped on the next run.
	again := &recordingIngestor{}
	stats, err = newSeeder(again, cacheFile).seedDirectory(context.Background(), owner, dir)
	require.NoError(t, err)
	assert.Empty(t, again.names())
	assert.Equal(t, 2, stats.skipped)
}

func TestSeedDirectory_ChangedFileIsReingested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.docx")
	writeFile(t, path, "v1")
	cacheFile := filepath.Join(t.TempDir(), "cache.json")
	owner := uuid.New()

	_, err := newSeeder(&recordingIngestor{}, cacheFile).seedDirectory(context.Background(), owner, dir)
	require.NoError(t, err)

	writeFile(t, path, "v2")
	ing := &recordingIngestor{}
	stats, err := newSeeder(ing, cacheFile).seedDirectory(context.Background(), owner, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"policy.docx"}, ing.names())
	assert.Equal(t, 1, stats.ingested)
}

func TestSeedDirectory_CacheIsPerOwner(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shared.docx"), "same")
	cacheFile := filepath.Join(t.TempDir(), "cache.json")

	_, err := newSeeder(&recordingIngestor{}, cacheFile).seedDirectory(context.Background(), uuid.New(), dir)
	require.NoError(t, err)

	ing := &recordingIngestor{}
	_, err = newSeeder(ing, cacheFile).seedDirectory(context.Background(), uuid.New(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared.docx"}, ing.names())
}

func TestSeedDirectory_ForceAndFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ok.docx"), "ok")
	writeFile(t, filepath.Join(dir, "broken.pdf"), "broken")
	cacheFile := filepath.Join(t.TempDir(), "cache.json")
	owner := uuid.New()

	ing := &recordingIngestor{fail: map[string]bool{"broken.pdf": true}}
	stats, err := newSeeder(ing, cacheFile).seedDirectory(context.Background(), owner, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ingested)
	assert.Equal(t, 1, stats.failed)

	// The failed file is retried, the cached one only with force.
	retry := &recordingIngestor{}
	_, err = newSeeder(retry, cacheFile).seedDirectory(context.Background(), owner, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken.pdf"}, retry.names())

	forced := &recordingIngestor{}
	s := newSeeder(forced, cacheFile)
	s.force = true
	_, err = s.seedDirectory(context.Background(), owner, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ok.docx", "broken.pdf"}, forced.names())
}

func TestIngestFile_ContentType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.unknownext"), "x")

	ing := &recordingIngestor{}
	_, err := newSeeder(ing, filepath.Join(dir, "c.json")).ingestFile(context.Background(), uuid.New(), filepath.Join(dir, "notes.unknownext"))
	require.NoError(t, err)
	require.Len(t, ing.calls, 1)
	assert.Equal(t, "application/octet-stream", ing.calls[0].ContentType)
	assert.Equal(t, []byte("x"), ing.calls[0].Content)
}

func TestLoadCache_MissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	cache, err := loadCache(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, cache.Owners)

	empty := filepath.Join(dir, "empty.json")
	writeFile(t, empty, "")
	cache, err = loadCache(empty)
	require.NoError(t, err)
	assert.NotNil(t, cache.Owners)

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, "{not json")
	_, err = loadCache(bad)
	assert.Error(t, err)
}

func TestCalculateFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	writeFile(t, path, "hello")

	hash, err := calculateFileHash(path)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", hash)
}

func TestRootCmd_RequiresOwner(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--dir", t.TempDir()})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}
