// Package app builds the object graph shared by the HTTP server and the
// bulk-ingest command from a loaded config.
package app

import (
	"context"
	"errors"
	"fmt"

	"rag-kb/internal/chunker"
	"rag-kb/internal/embedding"
	"rag-kb/internal/extractor"
	"rag-kb/internal/llm"
	"rag-kb/internal/repository"
	"rag-kb/internal/service"
	"rag-kb/internal/storage"
	"rag-kb/internal/vectorstore"
	"rag-kb/internal/vectorstore/memory"
	"rag-kb/internal/vectorstore/pgvector"
	"rag-kb/internal/vectorstore/qdrant"
	"rag-kb/internal/vectorstore/redis"
	"rag-kb/pkg/config"
	"rag-kb/pkg/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pipeline is everything needed to ingest and retrieve.
type Pipeline struct {
	DB        *pgxpool.Pool
	Storage   storage.ObjectStorage
	Embedder  *embedding.Client
	Index     *vectorstore.Gateway
	Completer llm.Completer

	Users     *repository.UserRepository
	Roles     *repository.RoleRepository
	Documents *repository.DocumentRepository
	Knowledge *repository.KnowledgeRepository
	History   *repository.ChatHistoryRepository

	Ingestion *service.IngestionService

	// LocalUploadsDir is set when files are kept on local disk.
	LocalUploadsDir string

	logger *zap.Logger
}

// NewPipeline connects to Postgres, the object store and the vector store.
// An existing collection whose dimension differs from EMBEDDING_DIM is
// reported as vectorstore.ErrDimensionMismatch; an unreachable vector store
// is only logged, since the collection is ensured again on first use.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	db, err := postgres.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{DB: db, logger: logger}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	p.Storage, p.LocalUploadsDir, err = newObjectStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	p.Embedder = embedding.NewClient(embedding.Config{
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	}, logger)

	backend, err := newVectorBackend(cfg, db)
	if err != nil {
		return nil, err
	}
	p.Index = vectorstore.NewGateway(backend, cfg.VectorStore.Collection, cfg.Embedding.Dimension, logger)

	ensureCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.VectorStore)
	err = p.Index.EnsureCollection(ensureCtx)
	cancel()
	switch {
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return nil, err
	case err != nil:
		logger.Warn("Vector store not reachable at startup", zap.Error(err))
	}

	p.Completer = newCompleter(cfg, logger)

	p.Users = repository.NewUserRepository(db, logger)
	p.Roles = repository.NewRoleRepository(db, logger)
	p.Documents = repository.NewDocumentRepository(db, logger)
	p.Knowledge = repository.NewKnowledgeRepository(db, logger)
	p.History = repository.NewChatHistoryRepository(db, logger)

	registry := extractor.NewRegistry(
		extractor.NewSpreadsheetExtractor(),
		extractor.NewWordExtractor(storage.ImageUploader{Storage: p.Storage}, logger),
		extractor.NewPDFExtractor(),
	)
	textChunker := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.ChunkSize),
		chunker.WithMinCharacters(cfg.Chunking.MinCharacters),
	)

	p.Ingestion = service.NewIngestionService(
		p.Storage, p.Documents, p.Knowledge, registry, textChunker, p.Embedder, p.Index,
		service.IngestionConfig{
			PurgeExistingChunks: cfg.Ingest.PurgeExistingChunks,
			Concurrency:         cfg.Ingest.Concurrency,
			PreviewLength:       cfg.Ingest.PreviewLength,
			StorageTimeout:      cfg.Timeouts.Storage,
			EmbeddingTimeout:    cfg.Timeouts.Embedding,
			VectorTimeout:       cfg.Timeouts.VectorStore,
		},
		logger,
	)

	ok = true
	return p, nil
}

// NewChatService builds the chat orchestrator over the pipeline's clients.
func (p *Pipeline) NewChatService(cfg *config.Config, logger *zap.Logger) *service.ChatService {
	return service.NewChatService(p.Embedder, p.Index, p.Completer, p.History, service.ChatConfig{
		TopK:              cfg.RAG.TopK,
		MaxContextChars:   cfg.RAG.MaxContextChars,
		SessionIDMode:     cfg.RAG.SessionIDMode,
		EmbeddingTimeout:  cfg.Timeouts.Embedding,
		VectorTimeout:     cfg.Timeouts.VectorStore,
		CompletionTimeout: cfg.Timeouts.Completion,
	}, logger)
}

// Close releases the completion client, the vector store and the pool.
func (p *Pipeline) Close() {
	if p.Completer != nil {
		if err := p.Completer.Close(); err != nil {
			p.logger.Warn("Failed to close completion client", zap.Error(err))
		}
	}
	if p.Index != nil {
		if err := p.Index.Close(); err != nil {
			p.logger.Warn("Failed to close vector store", zap.Error(err))
		}
	}
	if p.DB != nil {
		p.DB.Close()
	}
}

func newObjectStorage(cfg *config.Config, logger *zap.Logger) (storage.ObjectStorage, string, error) {
	switch cfg.Storage.Backend {
	case "local":
		s, err := storage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		logger.Info("Using local file storage", zap.String("dir", s.Dir()))
		return s, s.Dir(), nil
	default:
		m := cfg.Storage.MinIO
		s, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			Secure:    m.Secure,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		logger.Info("Using MinIO storage", zap.String("endpoint", m.Endpoint), zap.String("bucket", m.Bucket))
		return s, "", nil
	}
}

func newVectorBackend(cfg *config.Config, db *pgxpool.Pool) (vectorstore.Backend, error) {
	vs := cfg.VectorStore
	switch vs.Backend {
	case "qdrant":
		return qdrant.New(qdrant.Config{
			Host:   vs.Qdrant.Host,
			Port:   vs.Qdrant.Port,
			APIKey: vs.Qdrant.APIKey,
			UseTLS: vs.Qdrant.UseTLS,
		})
	case "redis":
		return redis.New(redis.Config{
			Addrs:    vs.Redis.Addrs,
			Username: vs.Redis.Username,
			Password: vs.Redis.Password,
			DB:       vs.Redis.DB,
		})
	case "pgvector":
		return pgvector.New(db), nil
	case "memory":
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown vector backend %q", vs.Backend)
}

func newCompleter(cfg *config.Config, logger *zap.Logger) llm.Completer {
	if cfg.LLM.Provider == "gigachat" {
		return llm.NewGigaChatClient(llm.GigaChatConfig{
			APIKey:             cfg.GigaChat.APIKey,
			Scope:              cfg.GigaChat.Scope,
			Model:              cfg.GigaChat.Model,
			InsecureSkipVerify: cfg.GigaChat.InsecureSkipVerify,
		}, logger)
	}
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger)
}
