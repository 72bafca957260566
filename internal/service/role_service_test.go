package service

import (
	"context"
	"errors"
	"testing"

	"rag-kb/internal/dto"
	"rag-kb/internal/models"
	"rag-kb/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRoles struct {
	roles []*models.Role
	err   error
}

func (f *fakeRoles) List(context.Context) ([]*models.Role, error) { return f.roles, f.err }

func (f *fakeRoles) Create(_ context.Context, role *models.Role) error {
	if f.err != nil {
		return f.err
	}
	role.ID = uuid.New()
	f.roles = append(f.roles, role)
	return nil
}

func TestRoleService(t *testing.T) {
	roles := &fakeRoles{}
	svc := NewRoleService(roles, zap.NewNop())
	ctx := context.Background()

	created, err := svc.Create(ctx, &dto.CreateRoleRequest{Name: " Editor ", Permissions: []string{models.PermissionFilesUpload}})
	require.NoError(t, err)
	assert.Equal(t, "editor", created.Name)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{models.PermissionFilesUpload}, list[0].Permissions)

	_, err = svc.Create(ctx, &dto.CreateRoleRequest{Name: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)

	tests := []struct {
		repoErr error
		want    error
	}{
		{repository.ErrDuplicate, ErrRoleExists},
		{repository.ErrUnknownPermission, ErrInvalidInput},
		{errors.New("conn closed"), ErrPersistence},
	}
	for _, tt := range tests {
		roles.err = tt.repoErr
		_, err := svc.Create(ctx, &dto.CreateRoleRequest{Name: "x"})
		assert.ErrorIs(t, err, tt.want)
	}
}
