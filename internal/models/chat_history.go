package models

import (
	"time"

	"github.com/google/uuid"
)

type ChatHistory struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	SessionID string    `db:"session_id"`
	Question  string    `db:"question"`
	Answer    string    `db:"answer"`
	CreatedAt time.Time `db:"created_at"`
}
