package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rag-kb/internal/dto"
	"rag-kb/internal/models"
	"rag-kb/internal/repository"

	"go.uber.org/zap"
)

var ErrRoleExists = errors.New("role already exists")

type RoleService struct {
	roles  RoleStore
	logger *zap.Logger
}

func NewRoleService(roles RoleStore, logger *zap.Logger) *RoleService {
	return &RoleService{
		roles:  roles,
		logger: logger,
	}
}

func (s *RoleService) List(ctx context.Context) ([]dto.RoleResponse, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	resp := make([]dto.RoleResponse, 0, len(roles))
	for _, r := range roles {
		resp = append(resp, toRoleResponse(r))
	}
	return resp, nil
}

func (s *RoleService) Create(ctx context.Context, req *dto.CreateRoleRequest) (*dto.RoleResponse, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}

	role := &models.Role{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Permissions: req.Permissions,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrRoleExists
		case errors.Is(err, repository.ErrUnknownPermission):
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: create role: %w", ErrPersistence, err)
	}

	s.logger.Info("Role created", zap.String("role", role.Name), zap.Strings("permissions", role.Permissions))
	resp := toRoleResponse(role)
	return &resp, nil
}

func toRoleResponse(r *models.Role) dto.RoleResponse {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return dto.RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		Permissions: perms,
	}
}
