package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-kb/internal/dto"
	"rag-kb/internal/models"
	"rag-kb/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// DocumentService serves the owner-scoped read side of uploads.
type DocumentService struct {
	documents DocumentStore
	knowledge KnowledgeStore
	logger    *zap.Logger
}

func NewDocumentService(documents DocumentStore, knowledge KnowledgeStore, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		documents: documents,
		knowledge: knowledge,
		logger:    logger,
	}
}

func (s *DocumentService) ListDocuments(ctx context.Context, userID uuid.UUID, limit, offset int) (*dto.DocumentListResponse, error) {
	limit, offset = page(limit, offset)
	docs, err := s.documents.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	resp := &dto.DocumentListResponse{Items: make([]dto.DocumentResponse, 0, len(docs))}
	for _, doc := range docs {
		resp.Items = append(resp.Items, toDocumentResponse(doc))
	}
	return resp, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, userID, documentID uuid.UUID) (*dto.DocumentResponse, error) {
	doc, err := s.documents.GetByID(ctx, documentID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	resp := toDocumentResponse(doc)
	return &resp, nil
}

func (s *DocumentService) ListKnowledge(ctx context.Context, userID uuid.UUID, limit, offset int) (*dto.KnowledgeListResponse, error) {
	limit, offset = page(limit, offset)
	items, err := s.knowledge.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge items: %w", err)
	}

	resp := &dto.KnowledgeListResponse{Items: make([]dto.KnowledgeItemResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, dto.KnowledgeItemResponse{
			ID:          item.ID.String(),
			ContentType: string(item.ContentType),
			Source:      item.Source,
			CleanedText: item.CleanedText,
			CreatedAt:   item.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func toDocumentResponse(doc *models.Document) dto.DocumentResponse {
	return dto.DocumentResponse{
		ID:          doc.ID.String(),
		FileName:    doc.FileName,
		FileSize:    doc.FileSize,
		FileURL:     doc.FileURL,
		ContentType: doc.ContentType,
		CreatedAt:   doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   doc.UpdatedAt.Format(time.RFC3339),
	}
}
