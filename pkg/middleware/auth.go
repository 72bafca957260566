package middleware

import (
	"context"
	"strings"

	"rag-kb/pkg/auth"
	"rag-kb/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator is the part of auth.JWTManager the middleware needs.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// PermissionChecker resolves whether a role grants a permission.
type PermissionChecker interface {
	RoleHasPermission(ctx context.Context, role, permission string) (bool, error)
}

func AuthMiddleware(validator TokenValidator, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		if token == "" {
			log.Warn("Missing authorization token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization token required",
			})
		}

		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := validator.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid token", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userID", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("email", claims.Email)
		c.Locals("role", claims.Role)

		reqLogger := log.With(
			zap.String("user_id", claims.UserID),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		)
		c.SetUserContext(logger.WithContext(c.UserContext(), reqLogger))

		return c.Next()
	}
}

// RequirePermission rejects callers whose role does not grant permission.
// It must run after AuthMiddleware.
func RequirePermission(checker PermissionChecker, permission string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		if role == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden",
			})
		}

		ok, err := checker.RoleHasPermission(c.UserContext(), role, permission)
		if err != nil {
			log.Error("Permission lookup failed", zap.String("role", role), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Permission check failed",
			})
		}
		if !ok {
			log.Warn("Permission denied", zap.String("role", role), zap.String("permission", permission))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden",
			})
		}

		return c.Next()
	}
}
