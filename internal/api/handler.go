// Package api exposes the HTTP surface: ingestion, query, retrieval debug,
// and document administration.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/paperquery/paperquery/internal/models"
	"github.com/paperquery/paperquery/internal/observability"
	"github.com/paperquery/paperquery/internal/service"
)

// maxUploadBytes caps a multipart upload; anything larger is rejected before
// it reaches the pipeline.
const maxUploadBytes = 100 << 20

// Ingester runs the ingestion pipeline for one upload.
type Ingester interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*service.IngestResult, error)
}

// Querier runs the query pipeline.
type Querier interface {
	Query(ctx context.Context, req service.QueryRequest) (*service.QueryResult, error)
	Search(ctx context.Context, req service.QueryRequest) ([]models.Passage, error)
}

// DocumentAdmin covers the document listing and deletion surface plus the
// connectivity probe behind the health check.
type DocumentAdmin interface {
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// Handler holds the HTTP route implementations.
type Handler struct {
	ingester Ingester
	querier  Querier
	docs     DocumentAdmin
	logger   observability.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(ingester Ingester, querier Querier, docs DocumentAdmin, logger observability.Logger) *Handler {
	return &Handler{
		ingester: ingester,
		querier:  querier,
		docs:     docs,
		logger:   logger.WithPrefix("api"),
	}
}

// Register attaches all routes to the router.
func (h *Handler) Register(r *gin.Engine) {
	r.MaxMultipartMemory = 32 << 20

	r.POST("/ingest/file", h.ingestFile)
	r.POST("/query", h.query)
	r.POST("/search", h.search)
	r.GET("/documents", h.listDocuments)
	r.GET("/documents/:id", h.getDocument)
	r.DELETE("/documents/:id", h.deleteDocument)
	r.GET("/healthz", h.healthz)
}

func (h *Handler) ingestFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "multipart form must carry a \"file\" part",
			Kind:  "validation",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "failed to open uploaded file: " + err.Error(),
			Kind:  "validation",
		})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "failed to read uploaded file: " + err.Error(),
			Kind:  "validation",
		})
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), service.IngestRequest{
		Filename: fileHeader.Filename,
		Mime:     fileHeader.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	result, err := h.querier.Query(c.Request.Context(), service.QueryRequest{
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) search(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	passages, err := h.querier.Search(c.Request.Context(), service.QueryRequest{
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SearchResponse{Passages: passages})
}

func (h *Handler) listDocuments(c *gin.Context) {
	docs, err := h.docs.ListDocuments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListDocumentsResponse{Documents: docs})
}

func (h *Handler) getDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "document id must be an integer", Kind: "validation"})
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) deleteDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "document id must be an integer", Kind: "validation"})
		return
	}

	if err := h.docs.DeleteDocument(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) healthz(c *gin.Context) {
	if err := h.docs.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}
