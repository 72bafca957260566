package dto

type DocumentResponse struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	FileURL     string `json:"file_url"`
	ContentType string `json:"content_type"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// UploadResponse is returned by the upload endpoint. ExtractedText is null
// when the format is not supported or extraction failed.
type UploadResponse struct {
	File          DocumentResponse `json:"file"`
	ExtractedText *string          `json:"extracted_text"`
	ChunksIndexed int              `json:"chunks_indexed"`
}

type DocumentListResponse struct {
	Items []DocumentResponse `json:"items"`
}
