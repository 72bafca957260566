package repository

import (
	"context"
	"fmt"
	"time"

	"rag-kb/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type RoleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewRoleRepository(db *pgxpool.Pool, logger *zap.Logger) *RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

func rolePermissionQuery(role, permission string) squirrel.SelectBuilder {
	return squirrel.Select("COUNT(*) > 0").
		From("role_permissions rp").
		Join("roles r ON r.id = rp.role_id").
		Join("permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"r.name": role, "p.name": permission}).
		PlaceholderFormat(squirrel.Dollar)
}

// RoleHasPermission reports whether the role named role grants permission.
func (r *RoleRepository) RoleHasPermission(ctx context.Context, role, permission string) (bool, error) {
	sql, args, err := rolePermissionQuery(role, permission).ToSql()
	if err != nil {
		return false, err
	}

	var ok bool
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func listRolesQuery() squirrel.SelectBuilder {
	return squirrel.Select(
		"r.id", "r.name", "r.description", "r.created_at",
		"COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')",
	).
		From("roles r").
		LeftJoin("role_permissions rp ON rp.role_id = r.id").
		LeftJoin("permissions p ON p.id = rp.permission_id").
		GroupBy("r.id").
		OrderBy("r.name").
		PlaceholderFormat(squirrel.Dollar)
}

func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	sql, args, err := listRolesQuery().ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}

	return roles, rows.Err()
}

const grantPermissionsSQL = `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, id FROM permissions WHERE name = ANY($2)`

// Create inserts role and grants it the named permissions in one
// transaction. Unknown permission names roll the whole role back.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}

	query := squirrel.Insert("roles").
		Columns("id", "name", "description", "created_at").
		Values(role.ID, role.Name, role.Description, role.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return translate(err)
		}
		if len(role.Permissions) == 0 {
			return nil
		}

		tag, err := tx.Exec(ctx, grantPermissionsSQL, role.ID, role.Permissions)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) != len(uniqueNames(role.Permissions)) {
			return fmt.Errorf("%w: %v", ErrUnknownPermission, role.Permissions)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("Failed to create role", zap.String("role", role.Name), zap.Error(err))
		return err
	}
	return nil
}

func uniqueNames(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
