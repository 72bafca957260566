package main

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ProcessedFile is one cache entry for a file that was ingested.
type ProcessedFile struct {
	FilePath    string    `json:"file_path"`
	FileHash    string    `json:"file_hash"`
	DocumentID  string    `json:"document_id"`
	Chunks      int       `json:"chunks_indexed"`
	ProcessedAt time.Time `json:"processed_at"`
}

// CacheData records ingested files per owner so an unchanged file is not
// uploaded twice for the same user.
type CacheData struct {
	// key: user id, then file path
	Owners map[string]map[string]ProcessedFile `json:"owners"`
}

func newCache() *CacheData {
	return &CacheData{Owners: make(map[string]map[string]ProcessedFile)}
}

func (c *CacheData) lookup(owner, path string) (ProcessedFile, bool) {
	files, ok := c.Owners[owner]
	if !ok {
		return ProcessedFile{}, false
	}
	entry, ok := files[path]
	return entry, ok
}

func (c *CacheData) store(owner string, entry ProcessedFile) {
	files, ok := c.Owners[owner]
	if !ok {
		files = make(map[string]ProcessedFile)
		c.Owners[owner] = files
	}
	files[entry.FilePath] = entry
}

func loadCache(cacheFile string) (*CacheData, error) {
	cache := newCache()

	data, err := os.ReadFile(cacheFile)
	if os.IsNotExist(err) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if cache.Owners == nil {
		cache.Owners = make(map[string]map[string]ProcessedFile)
	}

	return cache, nil
}

func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// calculateFileHash calculates MD5 hash of a file
func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
