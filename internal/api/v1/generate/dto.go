package generate

import (
	"time"

	"rackgen-backend/internal/rackgen"
)

// GenerateRequest is the caller's prompt plus an optional idempotency
// key. Retrying with the same request_id returns the original artifact
// without a second engine call or debit.
type GenerateRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	RequestID string `json:"request_id,omitempty"`
}

type GenerateResponse struct {
	Result      *rackgen.Result `json:"result"`
	DownloadURL string          `json:"download_url"`
	RequestID   string          `json:"request_id"`
}

type GenerationItem struct {
	ID              uint      `json:"id"`
	Prompt          string    `json:"prompt"`
	ResultReference string    `json:"result_reference"`
	CreativeName    string    `json:"creative_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type ListResponse struct {
	Items []GenerationItem `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}
