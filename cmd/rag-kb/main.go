package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rag-kb/internal/api"
	"rag-kb/internal/api/handlers"
	"rag-kb/internal/app"
	"rag-kb/internal/metrics"
	"rag-kb/internal/service"
	"rag-kb/pkg/auth"
	"rag-kb/pkg/config"
	"rag-kb/pkg/logger"

	"go.uber.org/zap"
)

// @title RAG Knowledge Base API
// @version 1.0
// @description Per-user document knowledge base with retrieval-augmented chat.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting RAG knowledge base service",
		zap.String("vector_backend", cfg.VectorStore.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	metrics.Register()

	ctx := context.Background()
	pipeline, err := app.NewPipeline(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	authService := service.NewAuthService(pipeline.Users, jwtManager, "", appLogger)
	roleService := service.NewRoleService(pipeline.Roles, appLogger)
	docService := service.NewDocumentService(pipeline.Documents, pipeline.Knowledge, appLogger)
	chatService := pipeline.NewChatService(cfg, appLogger)

	h := api.Handlers{
		Auth:   handlers.NewAuthHandler(authService, appLogger),
		Files:  handlers.NewFileHandler(pipeline.Ingestion, docService, appLogger),
		Chat:   handlers.NewChatHandler(chatService, appLogger),
		Roles:  handlers.NewRoleHandler(roleService, appLogger),
		Health: handlers.NewHealthHandler(pipeline.DB, appLogger),
	}

	server := api.SetupRouter(h, api.RouterConfig{
		BodyLimitMB:  cfg.Server.BodyLimitMB,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		UploadsDir:   pipeline.LocalUploadsDir,
	}, jwtManager, pipeline.Roles, appLogger)

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := server.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
