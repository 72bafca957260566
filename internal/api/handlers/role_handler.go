package handlers

import (
	"context"
	"errors"

	"rag-kb/internal/dto"
	"rag-kb/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type RoleManager interface {
	List(ctx context.Context) ([]dto.RoleResponse, error)
	Create(ctx context.Context, req *dto.CreateRoleRequest) (*dto.RoleResponse, error)
}

type RoleHandler struct {
	roles  RoleManager
	logger *zap.Logger
}

func NewRoleHandler(roles RoleManager, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{
		roles:  roles,
		logger: logger,
	}
}

// ListRoles godoc
// @Summary List roles and their permissions
// @Tags roles
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.RoleResponse
// @Failure 403 {object} map[string]string
// @Router /api/v1/roles [get]
func (h *RoleHandler) ListRoles(c *fiber.Ctx) error {
	roles, err := h.roles.List(c.UserContext())
	if err != nil {
		h.logger.Error("Failed to list roles", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list roles")
	}
	return c.JSON(roles)
}

// CreateRole godoc
// @Summary Create a role
// @Tags roles
// @Accept json
// @Produce json
// @Param request body dto.CreateRoleRequest true "Role"
// @Security Bearer
// @Success 201 {object} dto.RoleResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/roles [post]
func (h *RoleHandler) CreateRole(c *fiber.Ctx) error {
	var req dto.CreateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	role, err := h.roles.Create(c.UserContext(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoleExists):
			return errorJSON(c, fiber.StatusConflict, "Role already exists")
		case errors.Is(err, service.ErrInvalidInput):
			return errorJSON(c, fiber.StatusBadRequest, "Invalid role name or permissions")
		}
		h.logger.Error("Failed to create role", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to create role")
	}

	return c.Status(fiber.StatusCreated).JSON(role)
}
