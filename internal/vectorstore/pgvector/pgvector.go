// Package pgvector keeps chunks in the kb_chunks table of the application
// database, searched with the pgvector cosine operator.
package pgvector

import (
	"context"
	"errors"
	"fmt"

	"rag-kb/internal/vectorstore"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgv "github.com/pgvector/pgvector-go"
)

const table = "kb_chunks"

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) CollectionExists(ctx context.Context, _ string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists)
	return exists, err
}

// CollectionDimension reads the vector(n) type modifier of the embedding
// column.
func (s *Store) CollectionDimension(ctx context.Context, _ string) (int, error) {
	var dim int
	err := s.db.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'embedding'`, table).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if dim < 0 {
		dim = 0
	}
	return dim, err
}

func (s *Store) CreateCollection(ctx context.Context, _ string, dimension int) error {
	for _, stmt := range createStatements(dimension) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func createStatements(dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY,
			collection  TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			text        TEXT NOT NULL,
			source      TEXT NOT NULL DEFAULT '',
			user_id     TEXT NOT NULL,
			file_type   TEXT NOT NULL DEFAULT '',
			file_name   TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_owner_idx ON %[1]s (collection, user_id, file_name)`, table),
	}
}

func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	query, args, err := buildUpsert(collection, points)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, query, args...)
	return err
}

func buildUpsert(collection string, points []vectorstore.Point) (string, []any, error) {
	q := psql.Insert(table).
		Columns("id", "collection", "embedding", "text", "source", "user_id", "file_type", "file_name", "chunk_index")
	for _, p := range points {
		q = q.Values(
			p.ID,
			collection,
			squirrel.Expr("?::vector", pgv.NewVector(p.Vector)),
			p.Payload.Text,
			p.Payload.Source,
			p.Payload.UserID,
			p.Payload.FileType,
			p.Payload.FileName,
			p.Payload.ChunkIndex,
		)
	}
	q = q.Suffix(`ON CONFLICT (id) DO UPDATE SET
		collection = EXCLUDED.collection,
		embedding = EXCLUDED.embedding,
		text = EXCLUDED.text,
		source = EXCLUDED.source,
		user_id = EXCLUDED.user_id,
		file_type = EXCLUDED.file_type,
		file_name = EXCLUDED.file_name,
		chunk_index = EXCLUDED.chunk_index`)
	return q.ToSql()
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	query, args, err := buildSearch(collection, vector, limit, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vectorstore.ScoredPoint
	for rows.Next() {
		var p vectorstore.ScoredPoint
		var score float64
		if err := rows.Scan(
			&p.ID, &p.Payload.Text, &p.Payload.Source, &p.Payload.UserID,
			&p.Payload.FileType, &p.Payload.FileName, &p.Payload.ChunkIndex, &score,
		); err != nil {
			return nil, err
		}
		p.Score = float32(score)
		out = append(out, p)
	}
	return out, rows.Err()
}

func buildSearch(collection string, vector []float32, limit int, filter vectorstore.Filter) (string, []any, error) {
	vec := pgv.NewVector(vector)
	q := psql.Select("id::text", "text", "source", "user_id", "file_type", "file_name", "chunk_index").
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS score", vec)).
		From(table).
		Where(conditions(collection, filter)).
		OrderByClause("embedding <=> ?::vector", vec).
		Limit(uint64(limit))
	return q.ToSql()
}

func (s *Store) Delete(ctx context.Context, collection string, filter vectorstore.Filter) error {
	query, args, err := psql.Delete(table).Where(conditions(collection, filter)).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, query, args...)
	return err
}

// Close is a no-op; the pool belongs to the caller.
func (s *Store) Close() error { return nil }

func conditions(collection string, filter vectorstore.Filter) squirrel.Eq {
	eq := squirrel.Eq{"collection": collection}
	for k, v := range filter {
		eq[k] = v
	}
	return eq
}
