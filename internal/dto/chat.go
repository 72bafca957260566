package dto

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
}

type ChatHistoryEntry struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	CreatedAt string `json:"created_at"`
}

type ChatHistoryResponse struct {
	SessionID string             `json:"session_id"`
	Items     []ChatHistoryEntry `json:"items"`
}
