// Package service implements the ingestion and query orchestrators that tie
// the storage, processing, embedding, and generation components together.
package service

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/paperquery/paperquery/internal/config"
	"github.com/paperquery/paperquery/internal/extractor"
	"github.com/paperquery/paperquery/internal/faults"
	"github.com/paperquery/paperquery/internal/metrics"
	"github.com/paperquery/paperquery/internal/models"
	"github.com/paperquery/paperquery/internal/observability"
	"github.com/paperquery/paperquery/internal/processor"
	"github.com/paperquery/paperquery/internal/repository"
)

// BlobStore is the blob storage slice the orchestrators consume.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, mime string) (string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Embedder converts texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore persists the document/chunk/embedding triad atomically.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *models.Document, chunks []string, vectors [][]float32) (int64, error)
}

// pdfMime is the only content type ingestion accepts.
const pdfMime = "application/pdf"

// IngestRequest is one uploaded document.
type IngestRequest struct {
	Filename string
	Mime     string
	Data     []byte
}

// IngestResult reports what a successful ingestion persisted.
type IngestResult struct {
	DocumentID int64  `json:"document_id"`
	Title      string `json:"title"`
	S3URI      string `json:"s3_uri"`
	ChunkCount int    `json:"chunk_count"`
	Embedded   bool   `json:"embedded"`
}

// IngestionService runs the upload-extract-chunk-embed-persist pipeline.
type IngestionService struct {
	blobs      BlobStore
	embedder   Embedder
	store      DocumentStore
	normalizer *processor.Normalizer
	chunker    *processor.Chunker
	extract    func(data []byte) (string, error)

	maxChunks int
	dryRun    bool

	metrics *metrics.Metrics
	logger  observability.Logger
}

// NewIngestionService wires the ingestion pipeline from its components.
func NewIngestionService(
	blobs BlobStore,
	embedder Embedder,
	store DocumentStore,
	cfg config.ProcessingConfig,
	m *metrics.Metrics,
	logger observability.Logger,
) *IngestionService {
	return &IngestionService{
		blobs:      blobs,
		embedder:   embedder,
		store:      store,
		normalizer: processor.NewNormalizer(cfg.NormalizerMaxChars),
		chunker:    processor.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkerMaxChunks),
		extract:    extractor.Text,
		maxChunks:  cfg.MaxDocumentChunks,
		dryRun:     cfg.DryRun,
		metrics:    m,
		logger:     logger.WithPrefix("ingestion"),
	}
}

// Ingest runs the full pipeline for one uploaded document. The blob is
// written before any database row, and the triad is persisted in a single
// transaction; a failure at any stage leaves no partial document behind
// (at worst an orphaned blob, which is harmless).
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	start := time.Now()
	result, err := s.ingest(ctx, req)
	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.IngestErrors.WithLabelValues(faults.KindOf(err).String()).Inc()
		s.logger.Warn("Ingestion failed", map[string]interface{}{
			"filename": req.Filename,
			"error":    err.Error(),
		})
		return nil, err
	}

	s.metrics.DocumentsIngested.Inc()
	s.metrics.ChunksCreated.Add(float64(result.ChunkCount))
	if result.Embedded {
		s.metrics.EmbeddingsGenerated.Add(float64(result.ChunkCount))
	}
	s.logger.Info("Document ingested", map[string]interface{}{
		"document_id": result.DocumentID,
		"title":       result.Title,
		"chunks":      result.ChunkCount,
		"embedded":    result.Embedded,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (s *IngestionService) ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.Mime != pdfMime {
		return nil, faults.Validation("unsupported content type %q, want %s", req.Mime, pdfMime)
	}
	if len(req.Data) == 0 {
		return nil, faults.Validation("uploaded file is empty")
	}

	uri, err := s.blobs.Put(ctx, req.Filename, req.Data, req.Mime)
	if err != nil {
		return nil, faults.Transient(err, "failed to store uploaded file")
	}

	// Read the object back before extraction: a blob that cannot be
	// retrieved must never gain database rows pointing at it.
	stored, err := s.blobs.Get(ctx, uri)
	if err != nil {
		return nil, faults.Transient(err, "failed to read back stored file %s", uri)
	}
	if len(stored) == 0 {
		return nil, faults.Transient(nil, "stored file %s read back empty", uri)
	}

	raw, err := s.extract(stored)
	if err != nil {
		return nil, faults.Validation("failed to extract text: %v", err)
	}

	text := s.normalizer.Normalize(raw)
	if strings.TrimSpace(text) == "" {
		return nil, faults.Validation("document contains no extractable text")
	}

	var chunks []string
	for chunk := range s.chunker.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return nil, faults.Validation("document produced no chunks")
	}
	if len(chunks) > s.maxChunks {
		return nil, faults.TooManyChunks(len(chunks), s.maxChunks)
	}

	var vectors [][]float32
	if !s.dryRun {
		vectors, err = s.embedder.Embed(ctx, chunks)
		if err != nil {
			return nil, err
		}
	}

	doc := &models.Document{
		Title: titleFrom(req.Filename),
		S3URI: uri,
		Mime:  req.Mime,
	}
	docID, err := s.store.InsertDocument(ctx, doc, chunks, vectors)
	if errors.Is(err, repository.ErrDimensionMismatch) {
		return nil, faults.MalformedResponse("embedding store rejected the vectors: %v", err)
	}
	if err != nil {
		return nil, faults.Transient(err, "failed to persist document")
	}

	return &IngestResult{
		DocumentID: docID,
		Title:      doc.Title,
		S3URI:      uri,
		ChunkCount: len(chunks),
		Embedded:   !s.dryRun,
	}, nil
}

// titleFrom derives the document title from the uploaded filename, dropping
// any directory part and the extension.
func titleFrom(filename string) string {
	base := path.Base(filename)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return "untitled"
	}
	return base
}
