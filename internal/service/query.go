package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paperquery/paperquery/internal/config"
	"github.com/paperquery/paperquery/internal/faults"
	"github.com/paperquery/paperquery/internal/metrics"
	"github.com/paperquery/paperquery/internal/models"
	"github.com/paperquery/paperquery/internal/observability"
	"github.com/paperquery/paperquery/internal/prompt"
	"github.com/paperquery/paperquery/internal/repository"
)

// Generator dispatches a prompt to a text generation model.
type Generator interface {
	Generate(ctx context.Context, prompt, modelID string) (string, error)
}

// PassageStore retrieves the nearest chunks for a query vector.
type PassageStore interface {
	SearchPassages(ctx context.Context, vec []float32, topK int) ([]models.Passage, error)
}

// noContentAnswer is returned without calling the generation model when the
// vector index has nothing to retrieve.
const noContentAnswer = "I don't have any embedded content yet to answer. Try ingesting a PDF first."

// QueryRequest is one question against the ingested corpus.
type QueryRequest struct {
	Question string
	TopK     int
}

// QueryResult is the generated answer plus the passages that grounded it.
type QueryResult struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	ModelID   string   `json:"model_id"`
}

// QueryService runs the embed-retrieve-prompt-generate pipeline.
type QueryService struct {
	embedder  Embedder
	passages  PassageStore
	generator Generator

	chatModel       string
	defaultTopK     int
	maxTopK         int
	maxPassageChars int

	metrics *metrics.Metrics
	logger  observability.Logger
}

// NewQueryService wires the query pipeline from its components.
func NewQueryService(
	embedder Embedder,
	passages PassageStore,
	generator Generator,
	chatModel string,
	cfg config.QueryConfig,
	m *metrics.Metrics,
	logger observability.Logger,
) *QueryService {
	return &QueryService{
		embedder:        embedder,
		passages:        passages,
		generator:       generator,
		chatModel:       chatModel,
		defaultTopK:     cfg.DefaultTopK,
		maxTopK:         cfg.MaxTopK,
		maxPassageChars: cfg.MaxPassageChars,
		metrics:         m,
		logger:          logger.WithPrefix("query"),
	}
}

// Query answers one question from the ingested corpus. When retrieval comes
// back empty the generation model is never called; the caller gets a fixed
// answer with no citations.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()
	s.metrics.QueryRequests.Inc()

	result, err := s.query(ctx, req)
	s.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.QueryErrors.WithLabelValues(faults.KindOf(err).String()).Inc()
		s.logger.Warn("Query failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	s.logger.Info("Query answered", map[string]interface{}{
		"citations":   len(result.Citations),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (s *QueryService) query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, faults.Validation("question must not be empty")
	}
	topK, err := s.clampTopK(req.TopK)
	if err != nil {
		return nil, err
	}

	found, err := s.retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return &QueryResult{
			Answer:    noContentAnswer,
			Citations: []string{},
			ModelID:   s.chatModel,
		}, nil
	}

	for i := range found {
		found[i].Text = trimPassage(found[i].Text, s.maxPassageChars)
	}

	answer, err := s.generator.Generate(ctx, prompt.Build(question, found), s.chatModel)
	if err != nil {
		return nil, err
	}

	citations := make([]string, len(found))
	for i, p := range found {
		citations[i] = fmt.Sprintf("%s#%d", p.Title, p.Seq)
	}
	return &QueryResult{
		Answer:    answer,
		Citations: citations,
		ModelID:   s.chatModel,
	}, nil
}

// Search embeds the question and returns the raw nearest passages without
// calling the generation model. It backs the debug retrieval endpoint.
func (s *QueryService) Search(ctx context.Context, req QueryRequest) ([]models.Passage, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, faults.Validation("question must not be empty")
	}
	topK, err := s.clampTopK(req.TopK)
	if err != nil {
		return nil, err
	}
	return s.retrieve(ctx, question, topK)
}

func (s *QueryService) retrieve(ctx context.Context, question string, topK int) ([]models.Passage, error) {
	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, faults.MalformedResponse("embedding the question yielded %d vectors, want 1", len(vectors))
	}

	found, err := s.passages.SearchPassages(ctx, vectors[0], topK)
	if errors.Is(err, repository.ErrDimensionMismatch) {
		// The embedder produced the wrong vector shape; retrying the
		// request cannot help.
		return nil, faults.MalformedResponse("passage search rejected the query vector: %v", err)
	}
	if err != nil {
		return nil, faults.Transient(err, "failed to search passages")
	}
	return found, nil
}

// clampTopK applies the default for an unset value and rejects values
// outside [1, maxTopK].
func (s *QueryService) clampTopK(topK int) (int, error) {
	if topK == 0 {
		return s.defaultTopK, nil
	}
	if topK < 1 || topK > s.maxTopK {
		return 0, faults.Validation("top_k must be in [1, %d], got %d", s.maxTopK, topK)
	}
	return topK, nil
}

// trimPassage bounds a passage to max bytes, cutting at the last word
// boundary before the limit and marking the cut with an ellipsis.
func trimPassage(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \n") + "…"
}
