package dto

type KnowledgeItemResponse struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	Source      string `json:"source"`
	CleanedText string `json:"cleaned_text"`
	CreatedAt   string `json:"created_at"`
}

type KnowledgeListResponse struct {
	Items []KnowledgeItemResponse `json:"items"`
}
