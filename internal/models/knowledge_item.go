package models

import (
	"time"

	"github.com/google/uuid"
)

type KnowledgeContentType string

const (
	KnowledgeContentFile KnowledgeContentType = "file"
	KnowledgeContentURL  KnowledgeContentType = "url"
)

// KnowledgeItem is a short preview record of an ingested source.
type KnowledgeItem struct {
	ID          uuid.UUID            `db:"id"`
	UserID      uuid.UUID            `db:"user_id"`
	ContentType KnowledgeContentType `db:"content_type"`
	Source      string               `db:"source"`
	CleanedText string               `db:"cleaned_text"`
	CreatedAt   time.Time            `db:"created_at"`
}
