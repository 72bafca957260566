package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is the stored original of an upload. (UserID, FileName) is unique;
// re-uploading the same name replaces URL and size in place.
type Document struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	FileName    string    `db:"file_name"`
	FileSize    int64     `db:"file_size"`
	FileURL     string    `db:"file_url"`
	ContentType string    `db:"content_type"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
