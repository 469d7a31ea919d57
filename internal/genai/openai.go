package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/rzbill/orbiter/internal/errdefs"
)

const (
	defaultMaxRetries  = 3
	defaultInitBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 8 * time.Second
	backoffFactor      = 2.0
)

// OpenAIConfig holds wiring for the chat-completion backend. Endpoint and
// APIVersion support Azure-hosted deployments; leaving them empty targets
// the public API.
type OpenAIConfig struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
	MaxRetries int
}

// OpenAIClient implements Client on the official SDK.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// NewOpenAIClient builds a client from cfg. The API key is required.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errdefs.Validation("genai: api key is required")
	}
	if cfg.Deployment == "" {
		return nil, errdefs.Validation("genai: deployment is required")
	}
	var opts []option.RequestOption
	if cfg.Endpoint != "" {
		// Azure-hosted deployment: api-key header plus versioned paths.
		opts = append(opts,
			azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := openai.NewClient(opts...)
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &OpenAIClient{client: &client, model: cfg.Deployment, maxRetries: maxRetries}, nil
}

// Complete sends prompt as a single user message and returns the first
// choice's content. Transient upstream failures are retried with
// exponential backoff; exhausted retries surface as remote-dependency
// errors so callers can route the work item accordingly.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}

	backoff := defaultInitBackoff
	var resp *openai.ChatCompletion
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			break
		}
		if !retryableStatus(statusOf(err)) {
			return "", errdefs.RemoteDependency("genai completion", err)
		}
		if attempt == c.maxRetries {
			return "", errdefs.RemoteDependency(fmt.Sprintf("genai completion after %d retries", c.maxRetries), err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > defaultMaxBackoff {
			backoff = defaultMaxBackoff
		}
	}

	if len(resp.Choices) == 0 {
		return "", errdefs.RemoteDependency("genai completion", errors.New("empty response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func statusOf(err error) int {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode
	}
	return 0
}

// retryableStatus reports whether an upstream status is worth retrying.
// Status 0 means the request never got a response (network failure).
func retryableStatus(status int) bool {
	switch {
	case status == 0:
		return true
	case status == 408 || status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
