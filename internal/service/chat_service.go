package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"rag-kb/internal/dto"
	"rag-kb/internal/llm"
	"rag-kb/internal/metrics"
	"rag-kb/internal/models"
	"rag-kb/internal/vectorstore"
	"rag-kb/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionIDModeRandom = "random"
	SessionIDModeHash   = "hash"

	SystemPrompt  = "You are a helpful assistant."
	contextPrefix = "Here is some context information: "

	defaultTopK            = 5
	defaultMaxContextChars = 4000
	hashSessionBuckets     = 10000
)

type ChatConfig struct {
	TopK            int
	MaxContextChars int
	SessionIDMode   string

	EmbeddingTimeout  time.Duration
	VectorTimeout     time.Duration
	CompletionTimeout time.Duration
}

// ChatService answers a message with the owner's most similar chunks as
// context. Retrieval problems never fail the request; the model is then
// asked without context.
type ChatService struct {
	embedder  Embedder
	index     VectorIndex
	completer llm.Completer
	history   ChatHistoryStore
	cfg       ChatConfig
	logger    *zap.Logger
}

func NewChatService(
	embedder Embedder,
	index VectorIndex,
	completer llm.Completer,
	history ChatHistoryStore,
	cfg ChatConfig,
	logger *zap.Logger,
) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = defaultMaxContextChars
	}
	if cfg.SessionIDMode == "" {
		cfg.SessionIDMode = SessionIDModeRandom
	}

	return &ChatService{
		embedder:  embedder,
		index:     index,
		completer: completer,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *ChatService) Complete(ctx context.Context, userID uuid.UUID, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newSessionID(userID, req.Message)
	}

	log := logger.FromContext(ctx, s.logger).With(
		zap.String("user_id", userID.String()),
		zap.String("session_id", sessionID),
	)

	contextText := s.retrieveContext(ctx, log, userID, req.Message)

	contextMessage := ""
	if contextText != "" {
		contextMessage = contextPrefix + contextText
	}

	completeCtx, cancel := withTimeout(ctx, s.cfg.CompletionTimeout)
	answer, err := s.completer.Complete(completeCtx, SystemPrompt, contextMessage, req.Message)
	cancel()
	if err != nil {
		log.Error("Completion failed", zap.Error(err))
		if !errors.Is(err, llm.ErrCompletionService) {
			err = fmt.Errorf("%w: %w", llm.ErrCompletionService, err)
		}
		return nil, err
	}

	entry := &models.ChatHistory{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		Question:  sanitizeUTF8(req.Message),
		Answer:    sanitizeUTF8(answer),
		CreatedAt: time.Now(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		log.Error("Failed to save chat history", zap.Error(err))
		return nil, fmt.Errorf("%w: save chat history: %w", ErrPersistence, err)
	}

	log.Info("Chat completed", zap.Bool("with_context", contextText != ""))

	return &dto.ChatResponse{
		Answer:    answer,
		SessionID: sessionID,
	}, nil
}

// retrieveContext returns the joined chunk texts for message, or "" when
// the embedding or the search failed or nothing matched.
func (s *ChatService) retrieveContext(ctx context.Context, log *zap.Logger, userID uuid.UUID, message string) string {
	embedCtx, cancel := withTimeout(ctx, s.cfg.EmbeddingTimeout)
	vector, err := s.embedder.Embed(embedCtx, message)
	cancel()
	if err != nil {
		s.contextSkipped(log, metrics.ReasonEmbedding, err)
		return ""
	}

	searchCtx, cancel := withTimeout(ctx, s.cfg.VectorTimeout)
	hits, err := s.index.Search(searchCtx, vector, s.cfg.TopK, vectorstore.OwnerFilter(userID.String()))
	cancel()
	if err != nil {
		s.contextSkipped(log, metrics.ReasonVectorStore, err)
		return ""
	}

	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload.Text != "" {
			texts = append(texts, hit.Payload.Text)
		}
	}
	if len(texts) == 0 {
		s.contextSkipped(log, metrics.ReasonNoMatches, nil)
		return ""
	}

	log.Debug("Context retrieved", zap.Int("chunks", len(texts)))
	return runePrefix(strings.Join(texts, "\n"), s.cfg.MaxContextChars)
}

func (s *ChatService) contextSkipped(log *zap.Logger, reason string, err error) {
	metrics.ChatContextSkippedTotal.WithLabelValues(reason).Inc()
	if err != nil {
		log.Warn("Answering without context", zap.String("reason", reason), zap.Error(err))
		return
	}
	log.Info("Answering without context", zap.String("reason", reason))
}

// newSessionID derives a session id for a request that did not supply one.
// Hash mode is deterministic per owner and message and maps into a small
// bucket space, so distinct messages can share a session.
func (s *ChatService) newSessionID(userID uuid.UUID, message string) string {
	if s.cfg.SessionIDMode == SessionIDModeHash {
		return hashSessionID(userID, message)
	}
	return "session_" + uuid.NewString()
}

func hashSessionID(userID uuid.UUID, message string) string {
	h := fnv.New32a()
	h.Write([]byte(message))
	return fmt.Sprintf("session_%s_%d", userID, h.Sum32()%hashSessionBuckets)
}

// History returns one session of the owner's chat log.
func (s *ChatService) History(ctx context.Context, userID uuid.UUID, sessionID string) (*dto.ChatHistoryResponse, error) {
	entries, err := s.history.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	resp := &dto.ChatHistoryResponse{
		SessionID: sessionID,
		Items:     make([]dto.ChatHistoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Items = append(resp.Items, dto.ChatHistoryEntry{
			ID:        e.ID.String(),
			Question:  e.Question,
			Answer:    e.Answer,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp, nil
}
