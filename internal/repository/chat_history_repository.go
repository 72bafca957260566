package repository

import (
	"context"

	"rag-kb/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ChatHistoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewChatHistoryRepository(db *pgxpool.Pool, logger *zap.Logger) *ChatHistoryRepository {
	return &ChatHistoryRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ChatHistoryRepository) Create(ctx context.Context, entry *models.ChatHistory) error {
	query := squirrel.Insert("chat_history").
		Columns("id", "user_id", "session_id", "question", "answer", "created_at").
		Values(entry.ID, entry.UserID, entry.SessionID, entry.Question, entry.Answer, entry.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// ListBySession returns the owner's exchanges in one session, oldest first.
func (r *ChatHistoryRepository) ListBySession(ctx context.Context, userID uuid.UUID, sessionID string) ([]*models.ChatHistory, error) {
	query := squirrel.Select("id", "user_id", "session_id", "question", "answer", "created_at").
		From("chat_history").
		Where(squirrel.Eq{"user_id": userID, "session_id": sessionID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ChatHistory
	for rows.Next() {
		var e models.ChatHistory
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.Question, &e.Answer, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
