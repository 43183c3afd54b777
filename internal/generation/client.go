// Package generation dispatches assembled prompts to a Bedrock text
// generation model and parses the model-family-specific response shape.
package generation

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/paperquery/paperquery/internal/config"
	"github.com/paperquery/paperquery/internal/faults"
	"github.com/paperquery/paperquery/internal/observability"
)

// ModelInvoker is the slice of bedrockruntime.Client the generation client
// consumes; tests substitute a stub.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Params tune the generation call; they map onto each family's own field
// names and nesting.
type Params struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Client dispatches prompts to whichever model family the configured model
// id belongs to.
type Client struct {
	invoker ModelInvoker
	params  Params
	timeout time.Duration
	logger  observability.Logger
}

// NewClient creates a generation client around an existing invoker.
func NewClient(invoker ModelInvoker, params Params, timeout time.Duration, logger observability.Logger) *Client {
	if params.MaxTokens <= 0 {
		params.MaxTokens = 600
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		invoker: invoker,
		params:  params,
		timeout: timeout,
		logger:  logger.WithPrefix("generation"),
	}
}

// NewBedrockClient creates a generation client backed by a real Bedrock
// runtime client.
func NewBedrockClient(ctx context.Context, cfg config.BedrockConfig, logger observability.Logger) (*Client, error) {
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
	params := Params{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
	return NewClient(bedrockruntime.NewFromConfig(awsCfg), params, cfg.CallTimeout, logger), nil
}

// Generate dispatches prompt to the family owning modelID and returns the
// extracted answer text.
func (c *Client) Generate(ctx context.Context, prompt, modelID string) (string, error) {
	fam, ok := familyFor(modelID)
	if !ok {
		return "", faults.UnsupportedModel(modelID)
	}

	body, err := fam.encode(prompt, c.params)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s request: %w", fam.name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.invoker.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		// Carry the upstream message verbatim for diagnosis.
		return "", faults.Transient(err, "generation call to %s failed", modelID)
	}

	answer, ok := fam.extract(resp.Body)
	if !ok {
		return "", faults.MalformedResponse("%s response carries no recognizable answer field (raw: %q)",
			fam.name, excerpt(resp.Body))
	}
	if strings.TrimSpace(answer) == "" {
		return "", faults.EmptyGeneration(modelID, resp.Body)
	}
	return answer, nil
}

func excerpt(body []byte) []byte {
	const n = 300
	if len(body) > n {
		return body[:n]
	}
	return body
}
