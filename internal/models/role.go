package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	PermissionRolesManage = "roles:manage"
	PermissionFilesUpload = "files:upload"
	PermissionChatUse     = "chat:use"
)

type Role struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Permissions []string  `db:"-"`
	CreatedAt   time.Time `db:"created_at"`
}

type Permission struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
}
