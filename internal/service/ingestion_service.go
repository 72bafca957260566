package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"rag-kb/internal/chunker"
	"rag-kb/internal/dto"
	"rag-kb/internal/extractor"
	"rag-kb/internal/metrics"
	"rag-kb/internal/models"
	"rag-kb/internal/storage"
	"rag-kb/internal/vectorstore"
	"rag-kb/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPreviewLength = 500

type IngestionConfig struct {
	// PurgeExistingChunks deletes the owner's points for the same file name
	// before indexing a re-upload.
	PurgeExistingChunks bool
	Concurrency         int
	PreviewLength       int

	StorageTimeout   time.Duration
	EmbeddingTimeout time.Duration
	VectorTimeout    time.Duration
}

type IngestRequest struct {
	UserID      uuid.UUID
	FileName    string
	ContentType string
	Content     []byte
}

// IngestionService stores an upload and makes its text searchable:
// object storage, document row, extraction, knowledge item, chunking,
// embedding and vector upsert. Only the first two steps can fail the upload.
type IngestionService struct {
	storage    ObjectStore
	documents  DocumentStore
	knowledge  KnowledgeStore
	extractors ExtractorRegistry
	chunker    TextChunker
	embedder   Embedder
	index      VectorIndex
	cfg        IngestionConfig
	logger     *zap.Logger
}

func NewIngestionService(
	storage ObjectStore,
	documents DocumentStore,
	knowledge KnowledgeStore,
	extractors ExtractorRegistry,
	chunker TextChunker,
	embedder Embedder,
	index VectorIndex,
	cfg IngestionConfig,
	logger *zap.Logger,
) *IngestionService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = defaultPreviewLength
	}

	return &IngestionService{
		storage:    storage,
		documents:  documents,
		knowledge:  knowledge,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ingest runs the upload pipeline. Errors are returned only for the storage
// and document steps; everything after degrades to a result without text or
// with fewer chunks.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*dto.UploadResponse, error) {
	log := logger.FromContext(ctx, s.logger).With(
		zap.String("user_id", req.UserID.String()),
		zap.String("file_name", req.FileName),
	)

	// 1. Object storage
	objectName := storage.ObjectName(req.FileName)
	putCtx, cancel := withTimeout(ctx, s.cfg.StorageTimeout)
	fileURL, err := s.storage.Put(putCtx, objectName, req.ContentType, bytes.NewReader(req.Content), int64(len(req.Content)))
	cancel()
	if err != nil {
		log.Error("Failed to store upload", zap.String("object", objectName), zap.Error(err))
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	// 2. Document row
	now := time.Now()
	doc := &models.Document{
		ID:          uuid.New(),
		UserID:      req.UserID,
		FileName:    req.FileName,
		FileSize:    int64(len(req.Content)),
		FileURL:     fileURL,
		ContentType: req.ContentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	previousURL, err := s.documents.Upsert(ctx, doc)
	if err != nil {
		log.Error("Failed to save document record", zap.Error(err))
		return nil, fmt.Errorf("%w: save document: %w", ErrPersistence, err)
	}
	if previousURL != "" && previousURL != doc.FileURL {
		s.removeSuperseded(ctx, log, previousURL)
	}

	resp := &dto.UploadResponse{File: toDocumentResponse(doc)}

	// 3. Extractor
	kind, ext, ok := s.extractors.Resolve(req.FileName)
	if !ok {
		log.Info("No extractor for file type, stored without indexing",
			zap.String("file_type", extractor.FileType(req.FileName)))
		return resp, nil
	}

	// 4. Extraction
	text, err := ext.Extract(ctx, req.Content, req.FileName)
	if err != nil {
		s.stageFailed(log, metrics.StageExtract, err)
		return resp, nil
	}
	text = sanitizeUTF8(text)
	resp.ExtractedText = &text

	// 5. Knowledge item
	item := &models.KnowledgeItem{
		ID:          uuid.New(),
		UserID:      req.UserID,
		ContentType: models.KnowledgeContentFile,
		Source:      doc.FileURL,
		CleanedText: runePrefix(text, s.cfg.PreviewLength),
		CreatedAt:   now,
	}
	if err := s.knowledge.Create(ctx, item); err != nil {
		s.stageFailed(log, metrics.StageKnowledgeItem, err)
	}

	// 6. Chunking
	chunks := s.chunker.Chunk(text, chunker.PolicyFor(kind))
	if len(chunks) == 0 {
		log.Info("Extracted text produced no chunks")
		return resp, nil
	}

	// 7. Optional purge of a previous upload's chunks
	if s.cfg.PurgeExistingChunks {
		purgeCtx, cancel := withTimeout(ctx, s.cfg.VectorTimeout)
		err := s.index.Delete(purgeCtx, vectorstore.Filter{
			vectorstore.KeyUserID:   req.UserID.String(),
			vectorstore.KeyFileName: req.FileName,
		})
		cancel()
		if err != nil {
			s.stageFailed(log, metrics.StagePurge, err)
		}
	}

	// 8. Embed and upsert
	indexed, err := s.indexChunks(ctx, doc, chunks)
	resp.ChunksIndexed = indexed
	if err != nil {
		var se *stageError
		stage := metrics.StageUpsert
		if errors.As(err, &se) {
			stage = se.stage
		}
		s.stageFailed(log.With(zap.Int("chunks_indexed", indexed), zap.Int("chunks_total", len(chunks))), stage, err)
	} else {
		log.Info("Document indexed", zap.String("kind", kind.String()), zap.Int("chunks", indexed))
	}

	return resp, nil
}

// removeSuperseded deletes the object a re-upload replaced. Failure leaves
// an orphaned object and is only logged.
func (s *IngestionService) removeSuperseded(ctx context.Context, log *zap.Logger, previousURL string) {
	name := storage.ObjectNameFromURL(previousURL)
	if name == "" {
		return
	}
	rmCtx, cancel := withTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.storage.Remove(rmCtx, name); err != nil {
		log.Warn("Failed to remove superseded upload", zap.String("object", name), zap.Error(err))
		return
	}
	log.Info("Removed superseded upload", zap.String("object", name))
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

// indexChunks embeds and upserts chunks with at most cfg.Concurrency in flight.
// The first failure stops dispatch; points already written are kept.
func (s *IngestionService) indexChunks(ctx context.Context, doc *models.Document, chunks []string) (int, error) {
	fileType := extractor.FileType(doc.FileName)
	userID := doc.UserID.String()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	var indexed atomic.Int64
	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			embedCtx, cancel := withTimeout(gctx, s.cfg.EmbeddingTimeout)
			vector, err := s.embedder.Embed(embedCtx, chunk)
			cancel()
			if err != nil {
				return &stageError{stage: metrics.StageEmbed, err: err}
			}

			point := vectorstore.Point{
				ID:     uuid.NewString(),
				Vector: vector,
				Payload: vectorstore.Payload{
					Text:       chunk,
					Source:     doc.FileURL,
					UserID:     userID,
					FileType:   fileType,
					FileName:   doc.FileName,
					ChunkIndex: i,
				},
			}

			upsertCtx, cancel := withTimeout(gctx, s.cfg.VectorTimeout)
			err = s.index.Upsert(upsertCtx, []vectorstore.Point{point})
			cancel()
			if err != nil {
				return &stageError{stage: metrics.StageUpsert, err: err}
			}

			indexed.Add(1)
			metrics.ChunksIndexedTotal.WithLabelValues(fileType).Inc()
			return nil
		})
	}

	err := g.Wait()
	return int(indexed.Load()), err
}

func (s *IngestionService) stageFailed(log *zap.Logger, stage string, err error) {
	metrics.IngestionFailuresTotal.WithLabelValues(stage).Inc()
	log.Warn("Ingestion step failed", zap.String("stage", stage), zap.Error(err))
}
