// Package qdrant stores chunks in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"rag-kb/internal/vectorstore"

	"github.com/qdrant/go-client/qdrant"
)

// Config is the Qdrant connection.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// api is the subset of *qdrant.Client the store uses.
type api interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

type Store struct {
	client api
}

// New dials Qdrant. The gRPC connection is established lazily by the
// client, so an unreachable server surfaces on first use.
func New(cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Name() string { return "qdrant" }

func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	return s.client.CollectionExists(ctx, collection)
}

func (s *Store) CollectionDimension(ctx context.Context, collection string) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return 0, err
	}
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()), nil
}

func (s *Store) CreateCollection(ctx context.Context, collection string, dimension int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return vectorstore.ErrAlreadyExists
		}
		return err
	}

	for _, field := range []string{vectorstore.KeyUserID, vectorstore.KeyFileName} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("index payload field %s: %w", field, err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload.Map())
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", p.ID, err)
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qpoints,
	})
	return err
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         toFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]vectorstore.ScoredPoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, vectorstore.ScoredPoint{
			ID:      h.GetId().GetUuid(),
			Score:   h.GetScore(),
			Payload: fromPayload(h.GetPayload()),
		})
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection string, filter vectorstore.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toFilter(filter)),
	})
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}

func toFilter(f vectorstore.Filter) *qdrant.Filter {
	if len(f) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f))
	for _, k := range f.Keys() {
		must = append(must, qdrant.NewMatch(k, f[k]))
	}
	return &qdrant.Filter{Must: must}
}

func fromPayload(p map[string]*qdrant.Value) vectorstore.Payload {
	return vectorstore.Payload{
		Text:       p[vectorstore.KeyText].GetStringValue(),
		Source:     p[vectorstore.KeySource].GetStringValue(),
		UserID:     p[vectorstore.KeyUserID].GetStringValue(),
		FileType:   p[vectorstore.KeyFileType].GetStringValue(),
		FileName:   p[vectorstore.KeyFileName].GetStringValue(),
		ChunkIndex: int(p[vectorstore.KeyChunkIndex].GetIntegerValue()),
	}
}
