package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rag-kb/internal/dto"
	"rag-kb/internal/llm"
	"rag-kb/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testUser = uuid.MustParse("7d1b6a52-1f0e-4c8e-9a43-2f6f0b0c9a11")

// withUser stands in for the JWT middleware.
func withUser(c *fiber.Ctx) error {
	c.Locals("userID", testUser.String())
	return c.Next()
}

type fakeIngestor struct {
	got  service.IngestRequest
	resp *dto.UploadResponse
	err  error
}

func (f *fakeIngestor) Ingest(_ context.Context, req service.IngestRequest) (*dto.UploadResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeDocuments struct {
	err error
}

func (f *fakeDocuments) ListDocuments(context.Context, uuid.UUID, int, int) (*dto.DocumentListResponse, error) {
	return &dto.DocumentListResponse{Items: []dto.DocumentResponse{{ID: "d1", FileName: "a.docx"}}}, f.err
}

func (f *fakeDocuments) GetDocument(_ context.Context, _ uuid.UUID, id uuid.UUID) (*dto.DocumentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DocumentResponse{ID: id.String()}, nil
}

func (f *fakeDocuments) ListKnowledge(context.Context, uuid.UUID, int, int) (*dto.KnowledgeListResponse, error) {
	return &dto.KnowledgeListResponse{Items: []dto.KnowledgeItemResponse{}}, f.err
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func newFileApp(ingestor *fakeIngestor, docs *fakeDocuments) *fiber.App {
	h := NewFileHandler(ingestor, docs, zap.NewNop())
	app := fiber.New()
	app.Use(withUser)
	app.Post("/files/upload", h.Upload)
	app.Get("/files", h.ListFiles)
	app.Get("/files/:id", h.GetFile)
	app.Get("/knowledge", h.ListKnowledge)
	return app
}

func TestFileHandler_Upload(t *testing.T) {
	text := "Hello World"
	ingestor := &fakeIngestor{resp: &dto.UploadResponse{
		File:          dto.DocumentResponse{ID: "d1", FileName: "hello.docx"},
		ExtractedText: &text,
		ChunksIndexed: 1,
	}}
	app := newFileApp(ingestor, &fakeDocuments{})

	resp, err := app.Test(multipartUpload(t, "hello.docx", []byte("PK...")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got map[string]any
	decode(t, resp, &got)
	assert.Equal(t, "Hello World", got["extracted_text"])
	assert.Equal(t, float64(1), got["chunks_indexed"])

	assert.Equal(t, testUser, ingestor.got.UserID)
	assert.Equal(t, "hello.docx", ingestor.got.FileName)
	assert.Equal(t, []byte("PK..."), ingestor.got.Content)
	assert.NotEmpty(t, ingestor.got.ContentType)
}

func TestFileHandler_UploadNullText(t *testing.T) {
	ingestor := &fakeIngestor{resp: &dto.UploadResponse{File: dto.DocumentResponse{ID: "d1", FileName: "notes.txt"}}}
	app := newFileApp(ingestor, &fakeDocuments{})

	resp, err := app.Test(multipartUpload(t, "notes.txt", []byte("plain")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got map[string]any
	decode(t, resp, &got)
	v, ok := got["extracted_text"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, float64(0), got["chunks_indexed"])
}

func TestFileHandler_UploadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		app := newFileApp(&fakeIngestor{}, &fakeDocuments{})
		req := httptest.NewRequest(http.MethodPost, "/files/upload", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("pipeline failure is generic", func(t *testing.T) {
		app := newFileApp(&fakeIngestor{err: fmt.Errorf("%w: pq: deadlock detected", service.ErrPersistence)}, &fakeDocuments{})
		resp, err := app.Test(multipartUpload(t, "a.docx", []byte("x")))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

		var got map[string]string
		decode(t, resp, &got)
		assert.Equal(t, "Failed to upload file", got["error"])
	})
}

func TestFileHandler_GetFile(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"found", "/files/" + uuid.NewString(), nil, fiber.StatusOK},
		{"bad id", "/files/not-a-uuid", nil, fiber.StatusBadRequest},
		{"other owner", "/files/" + uuid.NewString(), service.ErrNotFound, fiber.StatusNotFound},
		{"db down", "/files/" + uuid.NewString(), errors.New("conn refused"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newFileApp(&fakeIngestor{}, &fakeDocuments{err: tt.err})
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestFileHandler_Lists(t *testing.T) {
	app := newFileApp(&fakeIngestor{}, &fakeDocuments{})

	for _, path := range []string{"/files?limit=5", "/knowledge"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}
}

func TestHandlers_RequireUser(t *testing.T) {
	h := NewFileHandler(&fakeIngestor{}, &fakeDocuments{}, zap.NewNop())
	app := fiber.New()
	app.Get("/files", h.ListFiles)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/files", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

type fakeChat struct {
	got  *dto.ChatRequest
	resp *dto.ChatResponse
	err  error
}

func (f *fakeChat) Complete(_ context.Context, _ uuid.UUID, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeChat) History(_ context.Context, _ uuid.UUID, sessionID string) (*dto.ChatHistoryResponse, error) {
	return &dto.ChatHistoryResponse{SessionID: sessionID, Items: []dto.ChatHistoryEntry{}}, f.err
}

func chatRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChatHandler_Completions(t *testing.T) {
	chat := &fakeChat{resp: &dto.ChatResponse{Answer: "Hi", SessionID: "session_1"}}
	h := NewChatHandler(chat, zap.NewNop())
	app := fiber.New()
	app.Use(withUser)
	app.Post("/chat/completions", h.Completions)
	app.Get("/chat/history/:session_id", h.History)

	resp, err := app.Test(chatRequest(`{"message":"Hello","session_id":"s-1"}`))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got dto.ChatResponse
	decode(t, resp, &got)
	assert.Equal(t, "Hi", got.Answer)
	assert.Equal(t, "session_1", got.SessionID)
	assert.Equal(t, "Hello", chat.got.Message)
	assert.Equal(t, "s-1", chat.got.SessionID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/chat/history/s-1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestChatHandler_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		want    int
		message string
	}{
		{"bad json", `{`, nil, fiber.StatusBadRequest, "Invalid request body"},
		{"empty message", `{"message":""}`, fmt.Errorf("%w: message is required", service.ErrInvalidInput), fiber.StatusBadRequest, "Message is required"},
		{"completion down", `{"message":"hi"}`, fmt.Errorf("%w: 502 bad gateway", llm.ErrCompletionService), fiber.StatusInternalServerError, "Completion service unavailable"},
		{"history write", `{"message":"hi"}`, fmt.Errorf("%w: insert", service.ErrPersistence), fiber.StatusInternalServerError, "Failed to save chat history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewChatHandler(&fakeChat{err: tt.err}, zap.NewNop())
			app := fiber.New()
			app.Use(withUser)
			app.Post("/chat/completions", h.Completions)

			resp, err := app.Test(chatRequest(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)

			var got map[string]string
			decode(t, resp, &got)
			assert.Equal(t, tt.message, got["error"])
		})
	}
}

type fakeAuth struct{ err error }

func (f fakeAuth) Register(context.Context, *dto.RegisterRequest) (*dto.AuthResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.AuthResponse{AccessToken: "a", TokenType: "Bearer"}, nil
}

func (f fakeAuth) Login(context.Context, *dto.LoginRequest) (*dto.AuthResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.AuthResponse{AccessToken: "a", TokenType: "Bearer"}, nil
}

func (f fakeAuth) RefreshToken(context.Context, string) (*dto.AuthResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.AuthResponse{AccessToken: "b", TokenType: "Bearer"}, nil
}

func TestAuthHandler(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"register", "/register", nil, fiber.StatusCreated},
		{"register conflict", "/register", service.ErrUserExists, fiber.StatusConflict},
		{"register invalid", "/register", service.ErrInvalidInput, fiber.StatusBadRequest},
		{"login", "/login", nil, fiber.StatusOK},
		{"login wrong password", "/login", service.ErrInvalidCredentials, fiber.StatusUnauthorized},
		{"login inactive", "/login", service.ErrUserInactive, fiber.StatusForbidden},
		{"refresh", "/refresh", nil, fiber.StatusOK},
		{"refresh invalid", "/refresh", service.ErrInvalidCredentials, fiber.StatusUnauthorized},
		{"refresh internal", "/refresh", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(fakeAuth{err: tt.err}, zap.NewNop())
			app := fiber.New()
			app.Post("/register", h.Register)
			app.Post("/login", h.Login)
			app.Post("/refresh", h.RefreshToken)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(`{"email":"a@b.c","password":"x","username":"a","refresh_token":"r"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

type fakeRoles struct{ err error }

func (f fakeRoles) List(context.Context) ([]dto.RoleResponse, error) {
	return []dto.RoleResponse{{Name: "admin", Permissions: []string{"roles:manage"}}}, f.err
}

func (f fakeRoles) Create(_ context.Context, req *dto.CreateRoleRequest) (*dto.RoleResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.RoleResponse{Name: req.Name, Permissions: req.Permissions}, nil
}

func TestRoleHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, fiber.StatusCreated},
		{"exists", service.ErrRoleExists, fiber.StatusConflict},
		{"unknown permission", service.ErrInvalidInput, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRoleHandler(fakeRoles{err: tt.err}, zap.NewNop())
			app := fiber.New()
			app.Get("/roles", h.ListRoles)
			app.Post("/roles", h.CreateRole)

			req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"editor","permissions":["files:upload"]}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want int
	}{
		{nil, fiber.StatusOK},
		{errors.New("down"), fiber.StatusServiceUnavailable},
	} {
		app := fiber.New()
		app.Get("/health", NewHealthHandler(fakePinger{tt.err}, zap.NewNop()).Health)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode)
	}
}
