package repository

import (
	"context"
	"errors"

	"rag-kb/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

var documentColumns = []string{
	"id", "user_id", "file_name", "file_size", "file_url", "content_type", "created_at", "updated_at",
}

func upsertDocumentQuery(doc *models.Document) squirrel.InsertBuilder {
	return squirrel.Insert("documents").
		Columns(documentColumns...).
		Values(doc.ID, doc.UserID, doc.FileName, doc.FileSize, doc.FileURL, doc.ContentType, doc.CreatedAt, doc.UpdatedAt).
		Suffix(`ON CONFLICT (user_id, file_name) DO UPDATE SET
	file_size = EXCLUDED.file_size,
	file_url = EXCLUDED.file_url,
	content_type = EXCLUDED.content_type,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at`).
		PlaceholderFormat(squirrel.Dollar)
}

func previousFileURLQuery(userID uuid.UUID, fileName string) squirrel.SelectBuilder {
	return squirrel.Select("file_url").
		From("documents").
		Where(squirrel.Eq{"user_id": userID, "file_name": fileName}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(squirrel.Dollar)
}

// Upsert stores doc, or updates the existing row for the same owner and
// file name in place. doc.ID and doc.CreatedAt are set from the stored row.
// previousURL is the file URL the update replaced, empty for a new row.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *models.Document) (previousURL string, err error) {
	prevSQL, prevArgs, err := previousFileURLQuery(doc.UserID, doc.FileName).ToSql()
	if err != nil {
		return "", err
	}
	sql, args, err := upsertDocumentQuery(doc).ToSql()
	if err != nil {
		return "", err
	}

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, prevSQL, prevArgs...).Scan(&previousURL); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return tx.QueryRow(ctx, sql, args...).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	})
	if err != nil {
		return "", err
	}
	return previousURL, nil
}

// GetByID returns the document only if it belongs to userID.
func (r *DocumentRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var doc models.Document
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&doc.ID, &doc.UserID, &doc.FileName, &doc.FileSize, &doc.FileURL, &doc.ContentType, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}

	return &doc, nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("updated_at DESC").
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

	var documents []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID, &doc.UserID, &doc.FileName, &doc.FileSize, &doc.FileURL, &doc.ContentType, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		documents = append(documents, &doc)
	}

	return documents, rows.Err()
}
