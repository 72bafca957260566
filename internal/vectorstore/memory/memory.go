// Package memory is an in-process vector index with brute-force cosine
// search. It backs local development and tests.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"rag-kb/internal/vectorstore"
)

type collection struct {
	dimension int
	points    map[string]vectorstore.Point
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Store) CollectionDimension(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return c.dimension, nil
	}
	return 0, nil
}

func (s *Store) CreateCollection(_ context.Context, name string, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return vectorstore.ErrAlreadyExists
	}
	s.collections[name] = &collection{dimension: dimension, points: make(map[string]vectorstore.Point)}
	return nil
}

func (s *Store) Upsert(_ context.Context, name string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(name)
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		c.points[p.ID] = p
	}
	return nil
}

func (s *Store) Search(_ context.Context, name string, vector []float32, limit int, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}

	var hits []vectorstore.ScoredPoint
	for _, p := range c.points {
		if !matches(p.Payload, filter) {
			continue
		}
		hits = append(hits, vectorstore.ScoredPoint{
			ID:      p.ID,
			Score:   cosine(vector, p.Vector),
			Payload: p.Payload,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) Delete(_ context.Context, name string, filter vectorstore.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	for id, p := range c.points {
		if matches(p.Payload, filter) {
			delete(c.points, id)
		}
	}
	return nil
}

// Len reports the number of points in a collection.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

func (s *Store) Close() error { return nil }

// collection must be called with the write lock held.
func (s *Store) collection(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{points: make(map[string]vectorstore.Point)}
		s.collections[name] = c
	}
	return c
}

func matches(p vectorstore.Payload, filter vectorstore.Filter) bool {
	for k, want := range filter {
		var got string
		switch k {
		case vectorstore.KeyUserID:
			got = p.UserID
		case vectorstore.KeySource:
			got = p.Source
		case vectorstore.KeyFileType:
			got = p.FileType
		case vectorstore.KeyFileName:
			got = p.FileName
		}
		if got != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
