package api

import (
	"errors"
	"time"

	"rag-kb/docs"
	"rag-kb/internal/api/handlers"
	"rag-kb/internal/metrics"
	"rag-kb/internal/models"
	"rag-kb/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth   *handlers.AuthHandler
	Files  *handlers.FileHandler
	Chat   *handlers.ChatHandler
	Roles  *handlers.RoleHandler
	Health *handlers.HealthHandler
}

type RouterConfig struct {
	BodyLimitMB  int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// UploadsDir is served under /uploads when files are kept on local disk.
	UploadsDir string
}

func SetupRouter(
	h Handlers,
	cfg RouterConfig,
	tokens middleware.TokenValidator,
	permissions middleware.PermissionChecker,
	appLogger *zap.Logger,
) *fiber.App {
	bodyLimit := cfg.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 50
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit * 1024 * 1024,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
				message = e.Message
			} else {
				appLogger.Error("Unhandled error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"error": message,
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())
	app.Use(metrics.Middleware())

	_ = docs.SwaggerInfo // registers the spec with swag
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", h.Health.Health)

	if cfg.UploadsDir != "" {
		appLogger.Info("Serving uploads", zap.String("path", cfg.UploadsDir))
		app.Static("/uploads", cfg.UploadsDir)
	}

	// Auth routes (public)
	auth := app.Group("/user/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.RefreshToken)

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(tokens, appLogger))

	files := protected.Group("/files")
	files.Post("/upload", middleware.RequirePermission(permissions, models.PermissionFilesUpload, appLogger), h.Files.Upload)
	files.Get("", h.Files.ListFiles)
	files.Get("/:id", h.Files.GetFile)

	protected.Get("/knowledge", h.Files.ListKnowledge)

	chat := protected.Group("/chat")
	chat.Post("/completions", middleware.RequirePermission(permissions, models.PermissionChatUse, appLogger), h.Chat.Completions)
	chat.Get("/history/:session_id", h.Chat.History)

	roles := protected.Group("/roles", middleware.RequirePermission(permissions, models.PermissionRolesManage, appLogger))
	roles.Get("", h.Roles.ListRoles)
	roles.Post("", h.Roles.CreateRole)

	return app
}
