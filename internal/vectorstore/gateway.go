package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Gateway is the single entry point to the vector index for one collection.
// Collection creation happens at most once per process; concurrent first
// callers wait on the same check.
type Gateway struct {
	backend    Backend
	collection string
	dimension  int
	logger     *zap.Logger

	mu      sync.Mutex
	ensured bool
}

func NewGateway(backend Backend, collection string, dimension int, logger *zap.Logger) *Gateway {
	return &Gateway{
		backend:    backend,
		collection: collection,
		dimension:  dimension,
		logger:     logger.With(zap.String("backend", backend.Name()), zap.String("collection", collection)),
	}
}

func (g *Gateway) Collection() string { return g.collection }

func (g *Gateway) Dimension() int { return g.dimension }

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (g *Gateway) EnsureCollection(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ensured {
		return nil
	}

	exists, err := g.backend.CollectionExists(ctx, g.collection)
	if err != nil {
		return g.unavailable("check collection", err)
	}

	if exists {
		dim, err := g.backend.CollectionDimension(ctx, g.collection)
		if err != nil {
			return g.unavailable("read collection dimension", err)
		}
		if dim != 0 && dim != g.dimension {
			return fmt.Errorf("%w: collection %q has %d, configured %d",
				ErrDimensionMismatch, g.collection, dim, g.dimension)
		}
	} else {
		err := g.backend.CreateCollection(ctx, g.collection, g.dimension)
		switch {
		case errors.Is(err, ErrAlreadyExists):
			g.logger.Debug("Collection created concurrently")
		case err != nil:
			return g.unavailable("create collection", err)
		default:
			g.logger.Info("Collection created", zap.Int("dimension", g.dimension))
		}
	}

	g.ensured = true
	return nil
}

// Upsert writes points, replacing any with the same id.
func (g *Gateway) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("vectorstore: point without id")
		}
		if len(p.Vector) != g.dimension {
			return fmt.Errorf("%w: point %s has %d, configured %d", ErrDimensionMismatch, p.ID, len(p.Vector), g.dimension)
		}
	}

	if err := g.EnsureCollection(ctx); err != nil {
		return err
	}
	if err := g.backend.Upsert(ctx, g.collection, points); err != nil {
		return g.unavailable("upsert", err)
	}
	return nil
}

// Search returns up to limit points closest to vector that match filter,
// best first. No matches is an empty result, not an error.
func (g *Gateway) Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	if len(vector) != g.dimension {
		return nil, fmt.Errorf("%w: query has %d, configured %d", ErrDimensionMismatch, len(vector), g.dimension)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []ScoredPoint{}, nil
	}

	if err := g.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	hits, err := g.backend.Search(ctx, g.collection, vector, limit, filter)
	if err != nil {
		return nil, g.unavailable("search", err)
	}
	if hits == nil {
		hits = []ScoredPoint{}
	}
	return hits, nil
}

// Delete removes every point matching filter. An empty filter is refused.
func (g *Gateway) Delete(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return fmt.Errorf("%w: delete requires at least one condition", ErrInvalidFilter)
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	if err := g.EnsureCollection(ctx); err != nil {
		return err
	}
	if err := g.backend.Delete(ctx, g.collection, filter); err != nil {
		return g.unavailable("delete", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.backend.Close()
}

func (g *Gateway) unavailable(op string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, g.backend.Name(), op, err)
}
