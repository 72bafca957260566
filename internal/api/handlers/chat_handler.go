package handlers

import (
	"context"
	"errors"

	"rag-kb/internal/dto"
	"rag-kb/internal/llm"
	"rag-kb/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatCompleter interface {
	Complete(ctx context.Context, userID uuid.UUID, req *dto.ChatRequest) (*dto.ChatResponse, error)
	History(ctx context.Context, userID uuid.UUID, sessionID string) (*dto.ChatHistoryResponse, error)
}

type ChatHandler struct {
	chat   ChatCompleter
	logger *zap.Logger
}

func NewChatHandler(chat ChatCompleter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// Completions godoc
// @Summary Ask the assistant
// @Description Answers the message using the caller's indexed documents as context. A session id is generated when none is sent.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body dto.ChatRequest true "Chat request"
// @Security Bearer
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/chat/completions [post]
func (h *ChatHandler) Completions(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.chat.Complete(c.UserContext(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			return errorJSON(c, fiber.StatusBadRequest, "Message is required")
		case errors.Is(err, llm.ErrCompletionService):
			return errorJSON(c, fiber.StatusInternalServerError, "Completion service unavailable")
		case errors.Is(err, service.ErrPersistence):
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to save chat history")
		}
		h.logger.Error("Chat completion failed", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Chat completion failed")
	}

	return c.JSON(resp)
}

// History godoc
// @Summary Chat history of one session
// @Tags chat
// @Produce json
// @Param session_id path string true "Session ID"
// @Security Bearer
// @Success 200 {object} dto.ChatHistoryResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/chat/history/{session_id} [get]
func (h *ChatHandler) History(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	sessionID := c.Params("session_id")
	if sessionID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Session ID is required")
	}

	resp, err := h.chat.History(c.UserContext(), userID, sessionID)
	if err != nil {
		h.logger.Error("Failed to load chat history", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load chat history")
	}

	return c.JSON(resp)
}
