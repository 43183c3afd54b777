package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperquery/paperquery/internal/config"
	"github.com/paperquery/paperquery/internal/faults"
	"github.com/paperquery/paperquery/internal/metrics"
	"github.com/paperquery/paperquery/internal/models"
	"github.com/paperquery/paperquery/internal/observability"
	"github.com/paperquery/paperquery/internal/repository"
)

type stubBlobStore struct {
	putErr  error
	getErr  error
	stored  map[string][]byte
	putURIs []string
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{stored: map[string][]byte{}}
}

func (s *stubBlobStore) Put(ctx context.Context, name string, data []byte, mime string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	uri := fmt.Sprintf("s3://bucket/uploads/%d-%s", len(s.putURIs), name)
	s.stored[uri] = data
	s.putURIs = append(s.putURIs, uri)
	return uri, nil
}

func (s *stubBlobStore) Get(ctx context.Context, uri string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.stored[uri], nil
}

type stubEmbedder struct {
	err   error
	dims  int
	calls [][]string
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	dims := s.dims
	if dims == 0 {
		dims = 4
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, dims)
	}
	return vectors, nil
}

type stubDocStore struct {
	err     error
	nextID  int64
	doc     *models.Document
	chunks  []string
	vectors [][]float32
}

func (s *stubDocStore) InsertDocument(ctx context.Context, doc *models.Document, chunks []string, vectors [][]float32) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.doc = doc
	s.chunks = chunks
	s.vectors = vectors
	if s.nextID == 0 {
		s.nextID = 1
	}
	return s.nextID, nil
}

func testProcessingConfig() config.ProcessingConfig {
	return config.ProcessingConfig{
		NormalizerMaxChars: 10_000,
		ChunkSize:          50,
		ChunkOverlap:       10,
		ChunkerMaxChunks:   100,
		MaxDocumentChunks:  10,
	}
}

type ingestFixture struct {
	svc      *IngestionService
	blobs    *stubBlobStore
	embedder *stubEmbedder
	store    *stubDocStore
}

func newIngestFixture(cfg config.ProcessingConfig) *ingestFixture {
	f := &ingestFixture{
		blobs:    newStubBlobStore(),
		embedder: &stubEmbedder{},
		store:    &stubDocStore{},
	}
	f.svc = NewIngestionService(f.blobs, f.embedder, f.store, cfg,
		metrics.New(prometheus.NewRegistry()), observability.NewNoopLogger())
	// Tests feed plain text; the PDF parser is exercised in its own package.
	f.svc.extract = func(data []byte) (string, error) {
		return string(data), nil
	}
	return f
}

func pdfRequest(text string) IngestRequest {
	return IngestRequest{Filename: "paper.pdf", Mime: "application/pdf", Data: []byte(text)}
}

func TestIngestHappyPath(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())

	result, err := f.svc.Ingest(context.Background(), pdfRequest("first paragraph\n\nsecond paragraph here"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.DocumentID)
	assert.Equal(t, "paper", result.Title)
	assert.True(t, result.Embedded)
	assert.Positive(t, result.ChunkCount)

	// Embedded texts are exactly the persisted chunks, in order.
	require.Len(t, f.embedder.calls, 1)
	assert.Equal(t, f.store.chunks, f.embedder.calls[0])
	assert.Len(t, f.store.vectors, len(f.store.chunks))
	assert.Equal(t, "application/pdf", f.store.doc.Mime)
	assert.Equal(t, f.blobs.putURIs[0], f.store.doc.S3URI)
}

func TestIngestRejectsWrongMime(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())

	_, err := f.svc.Ingest(context.Background(), IngestRequest{
		Filename: "notes.txt", Mime: "text/plain", Data: []byte("hello"),
	})
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	assert.Empty(t, f.blobs.putURIs)
}

func TestIngestRejectsEmptyPayload(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())

	_, err := f.svc.Ingest(context.Background(), IngestRequest{
		Filename: "empty.pdf", Mime: "application/pdf",
	})
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestIngestRejectsUnextractableText(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())
	f.svc.extract = func(data []byte) (string, error) {
		return "", errors.New("bad xref table")
	}

	_, err := f.svc.Ingest(context.Background(), pdfRequest("binary"))
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	assert.Contains(t, err.Error(), "bad xref table")
}

func TestIngestRejectsWhitespaceOnlyText(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())

	_, err := f.svc.Ingest(context.Background(), pdfRequest("  \n\n \n "))
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	require.Len(t, f.embedder.calls, 0)
}

func TestIngestChunkCeiling(t *testing.T) {
	cfg := testProcessingConfig()
	cfg.MaxDocumentChunks = 2
	f := newIngestFixture(cfg)

	// Three paragraphs near the 50-byte target flush one chunk each.
	text := strings.Join([]string{
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
	}, "\n\n")
	_, err := f.svc.Ingest(context.Background(), pdfRequest(text))
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	assert.ErrorIs(t, err, faults.ErrTooManyChunks)
	// Rejected before any embedding call.
	assert.Empty(t, f.embedder.calls)
}

func TestIngestStorageFailureIsTransient(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())
	f.blobs.putErr = errors.New("connection refused")

	_, err := f.svc.Ingest(context.Background(), pdfRequest("content"))
	require.Error(t, err)
	assert.Equal(t, faults.KindTransient, faults.KindOf(err))
	assert.Nil(t, f.store.doc)
}

func TestIngestReadbackFailureIsTransient(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())
	f.blobs.getErr = errors.New("object vanished")

	_, err := f.svc.Ingest(context.Background(), pdfRequest("content"))
	require.Error(t, err)
	assert.Equal(t, faults.KindTransient, faults.KindOf(err))
}

func TestIngestEmbeddingFailureAbortsPersistence(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())
	f.embedder.err = faults.Transient(errors.New("throttled"), "embedding call failed")

	_, err := f.svc.Ingest(context.Background(), pdfRequest("some content"))
	require.Error(t, err)
	assert.Equal(t, faults.KindTransient, faults.KindOf(err))
	assert.Nil(t, f.store.doc)
}

func TestIngestDimensionMismatchIsNotTransient(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())
	f.store.err = fmt.Errorf("vector 0 has 512 dimensions, want 1024: %w",
		repository.ErrDimensionMismatch)

	_, err := f.svc.Ingest(context.Background(), pdfRequest("some content"))
	require.Error(t, err)
	assert.Equal(t, faults.KindMalformedResponse, faults.KindOf(err))
}

func TestIngestPersistenceFailureIsTransient(t *testing.T) {
	f := newIngestFixture(testProcessingConfig())
	f.store.err = errors.New("deadlock detected")

	_, err := f.svc.Ingest(context.Background(), pdfRequest("some content"))
	require.Error(t, err)
	assert.Equal(t, faults.KindTransient, faults.KindOf(err))
}

func TestIngestDryRunSkipsEmbedding(t *testing.T) {
	cfg := testProcessingConfig()
	cfg.DryRun = true
	f := newIngestFixture(cfg)

	result, err := f.svc.Ingest(context.Background(), pdfRequest("some content"))
	require.NoError(t, err)
	assert.False(t, result.Embedded)
	assert.Empty(t, f.embedder.calls)
	assert.Nil(t, f.store.vectors)
}

func TestTitleFrom(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"paper.pdf", "paper"},
		{"dir/nested/thesis.pdf", "thesis"},
		{"no-extension", "no-extension"},
		{"archive.tar.gz", "archive.tar"},
		{"", "untitled"},
		{".pdf", "untitled"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, titleFrom(tt.filename), "filename %q", tt.filename)
	}
}
