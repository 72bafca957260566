package service

import (
	"context"
	"io"

	"rag-kb/internal/chunker"
	"rag-kb/internal/extractor"
	"rag-kb/internal/models"
	"rag-kb/internal/vectorstore"

	"github.com/google/uuid"
)

// The interfaces below are the slices of repositories and clients the
// services depend on.

type ObjectStore interface {
	Put(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (string, error)
	Remove(ctx context.Context, objectName string) error
}

type DocumentStore interface {
	Upsert(ctx context.Context, doc *models.Document) (previousURL string, err error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Document, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Document, error)
}

type KnowledgeStore interface {
	Create(ctx context.Context, item *models.KnowledgeItem) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.KnowledgeItem, error)
}

type ChatHistoryStore interface {
	Create(ctx context.Context, entry *models.ChatHistory) error
	ListBySession(ctx context.Context, userID uuid.UUID, sessionID string) ([]*models.ChatHistory, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User, roleName string) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type RoleStore interface {
	List(ctx context.Context) ([]*models.Role, error)
	Create(ctx context.Context, role *models.Role) error
}

type ExtractorRegistry interface {
	Resolve(filename string) (extractor.Kind, extractor.Extractor, bool)
}

type TextChunker interface {
	Chunk(text string, policy chunker.Policy) []string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, points []vectorstore.Point) error
	Search(ctx context.Context, vector []float32, limit int, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error)
	Delete(ctx context.Context, filter vectorstore.Filter) error
}
