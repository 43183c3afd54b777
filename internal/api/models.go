package api

import "github.com/paperquery/paperquery/internal/models"

// QueryRequest is the body of POST /query and POST /search. The top_k range
// is policy owned by the query service, which validates it against the
// configured ceiling; the tag only requires a question.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	Passages []models.Passage `json:"passages"`
}

// ListDocumentsResponse is the body of GET /documents.
type ListDocumentsResponse struct {
	Documents []models.Document `json:"documents"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
