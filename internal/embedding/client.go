// Package embedding converts text segments into fixed-dimension vectors via
// AWS Bedrock (Titan Text Embeddings v2).
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/time/rate"

	"github.com/paperquery/paperquery/internal/config"
	"github.com/paperquery/paperquery/internal/faults"
	"github.com/paperquery/paperquery/internal/observability"
)

// ModelInvoker is the slice of bedrockruntime.Client the embedding client
// consumes; tests substitute a stub.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type titanEmbeddingRequest struct {
	InputText string `json:"inputText"`
}

// titanEmbeddingResponse probes the two vector field names Titan responses
// have been observed to use across minor versions.
type titanEmbeddingResponse struct {
	Embedding  []float32   `json:"embedding"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Client embeds texts one invoke per text, throttled between calls so a
// large ingestion does not trip upstream rate limiting.
type Client struct {
	invoker ModelInvoker
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  observability.Logger
}

// NewClient creates an embedding client around an existing invoker.
// throttle is the minimum spacing between consecutive calls; zero disables
// it. timeout bounds each individual call.
func NewClient(invoker ModelInvoker, model string, throttle, timeout time.Duration, logger observability.Logger) *Client {
	limit := rate.Inf
	if throttle > 0 {
		limit = rate.Every(throttle)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		invoker: invoker,
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		logger:  logger.WithPrefix("embedding"),
	}
}

// NewBedrockClient creates an embedding client backed by a real Bedrock
// runtime client. Retries with exponential backoff are delegated to the AWS
// SDK's standard retryer.
func NewBedrockClient(ctx context.Context, cfg config.BedrockConfig, throttle time.Duration, logger observability.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithHTTPClient(&http.Client{
			Timeout: cfg.CallTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)
	return NewClient(client, cfg.EmbedModel, throttle, cfg.CallTimeout, logger), nil
}

// Embed returns exactly one vector per input text, in input order, or fails
// entirely. A partial result is never returned: an ingested chunk without
// an embedding would violate the chunk-embedding invariant.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, faults.Transient(err, "embedding throttle interrupted at text %d", i)
		}
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i, len(texts), err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbeddingRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.invoker.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, faults.Transient(err, "embedding call to %s failed", c.model)
	}

	return extractVector(resp.Body)
}

// extractVector probes the known vector field names in order and fails
// loudly when none match, rather than silently returning an empty vector.
func extractVector(body []byte) ([]float32, error) {
	var parsed titanEmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, faults.MalformedResponse("embed response is not valid JSON: %v", err)
	}
	if len(parsed.Embedding) > 0 {
		return parsed.Embedding, nil
	}
	if len(parsed.Embeddings) > 0 && len(parsed.Embeddings[0]) > 0 {
		return parsed.Embeddings[0], nil
	}

	var keys map[string]json.RawMessage
	_ = json.Unmarshal(body, &keys)
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	return nil, faults.MalformedResponse("embed response carries no vector field, keys=%v", names)
}
