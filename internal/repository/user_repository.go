package repository

import (
	"context"

	"rag-kb/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

var userColumns = []string{
	"u.id", "u.username", "u.email", "u.password", "u.is_active", "u.role_id", "r.name",
	"u.created_at", "u.updated_at",
}

func selectUsers() squirrel.SelectBuilder {
	return squirrel.Select(userColumns...).
		From("users u").
		Join("roles r ON r.id = u.role_id").
		PlaceholderFormat(squirrel.Dollar)
}

// Create inserts user with the role named roleName.
func (r *UserRepository) Create(ctx context.Context, user *models.User, roleName string) error {
	query := squirrel.Insert("users").
		Columns("id", "username", "email", "password", "is_active", "role_id", "created_at", "updated_at").
		Select(squirrel.Select().
			Column("?", user.ID).
			Column("?", user.Username).
			Column("?", user.Email).
			Column("?", user.Password).
			Column("?", user.IsActive).
			Column("id").
			Column("?", user.CreatedAt).
			Column("?", user.UpdatedAt).
			From("roles").
			Where(squirrel.Eq{"name": roleName})).
		Suffix("RETURNING role_id").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if err := r.db.QueryRow(ctx, sql, args...).Scan(&user.RoleID); err != nil {
		return translate(err)
	}
	user.Role = roleName
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, squirrel.Eq{"u.email": email})
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, squirrel.Eq{"u.id": id})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*models.User, error) {
	sql, args, err := selectUsers().Where(where).ToSql()
	if err != nil {
		return nil, err
	}

	var user models.User
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.Password, &user.IsActive, &user.RoleID, &user.Role,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}

	return &user, nil
}
