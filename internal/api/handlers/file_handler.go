package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"

	"rag-kb/internal/dto"
	"rag-kb/internal/service"
	"rag-kb/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Ingestor interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*dto.UploadResponse, error)
}

type DocumentReader interface {
	ListDocuments(ctx context.Context, userID uuid.UUID, limit, offset int) (*dto.DocumentListResponse, error)
	GetDocument(ctx context.Context, userID, documentID uuid.UUID) (*dto.DocumentResponse, error)
	ListKnowledge(ctx context.Context, userID uuid.UUID, limit, offset int) (*dto.KnowledgeListResponse, error)
}

type FileHandler struct {
	ingestion Ingestor
	documents DocumentReader
	logger    *zap.Logger
}

func NewFileHandler(ingestion Ingestor, documents DocumentReader, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		ingestion: ingestion,
		documents: documents,
		logger:    logger,
	}
}

// Upload godoc
// @Summary Upload a document to the knowledge base
// @Description Stores the file and, for .xlsx, .xls, .docx and .pdf, extracts, chunks and indexes its text. extracted_text is null for other formats or when extraction failed.
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document"
// @Security Bearer
// @Success 200 {object} dto.UploadResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/files/upload [post]
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "File is required")
	}
	if file.Filename == "" {
		return errorJSON(c, fiber.StatusBadRequest, "File name is required")
	}

	src, err := file.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Failed to open file")
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Failed to read file")
	}

	contentType := file.Header.Get(fiber.HeaderContentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(file.Filename))
	}
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}

	resp, err := h.ingestion.Ingest(c.UserContext(), service.IngestRequest{
		UserID:      userID,
		FileName:    filepath.Base(file.Filename),
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		logger.FromContext(c.UserContext(), h.logger).Error("Failed to upload file",
			zap.String("file_name", file.Filename), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to upload file")
	}

	return c.JSON(resp)
}

// ListFiles godoc
// @Summary List the caller's documents
// @Tags files
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {object} dto.DocumentListResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/files [get]
func (h *FileHandler) ListFiles(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	docs, err := h.documents.ListDocuments(c.UserContext(), userID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.logger.Error("Failed to list documents", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list files")
	}

	return c.JSON(docs)
}

// GetFile godoc
// @Summary Get one of the caller's documents
// @Tags files
// @Produce json
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 200 {object} dto.DocumentResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/files/{id} [get]
func (h *FileHandler) GetFile(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	documentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid document ID")
	}

	doc, err := h.documents.GetDocument(c.UserContext(), userID, documentID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "File not found")
		}
		h.logger.Error("Failed to get document", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to get file")
	}

	return c.JSON(doc)
}

// ListKnowledge godoc
// @Summary List the caller's knowledge items
// @Description Short previews of every ingested source.
// @Tags knowledge
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {object} dto.KnowledgeListResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/knowledge [get]
func (h *FileHandler) ListKnowledge(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	items, err := h.documents.ListKnowledge(c.UserContext(), userID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.logger.Error("Failed to list knowledge items", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list knowledge items")
	}

	return c.JSON(items)
}
