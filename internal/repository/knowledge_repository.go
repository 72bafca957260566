package repository

import (
	"context"

	"rag-kb/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type KnowledgeRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewKnowledgeRepository(db *pgxpool.Pool, logger *zap.Logger) *KnowledgeRepository {
	return &KnowledgeRepository{
		db:     db,
		logger: logger,
	}
}

func (r *KnowledgeRepository) Create(ctx context.Context, item *models.KnowledgeItem) error {
	query := squirrel.Insert("knowledge_items").
		Columns("id", "user_id", "content_type", "source", "cleaned_text", "created_at").
		Values(item.ID, item.UserID, item.ContentType, item.Source, item.CleanedText, item.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *KnowledgeRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.KnowledgeItem, error) {
	query := squirrel.Select("id", "user_id", "content_type", "source", "cleaned_text", "created_at").
		From("knowledge_items").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
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

	var items []*models.KnowledgeItem
	for rows.Next() {
		var item models.KnowledgeItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.ContentType, &item.Source, &item.CleanedText, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}
