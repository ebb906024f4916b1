package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/fundscout/internal/metrics"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Config holds the OpenAI-compatible provider settings.
type Config struct {
	BaseURL          string
	APIKey           string
	EmbedModel       string
	EmbedDimensions  int
	StoreCompletions bool
	HTTPClient       *http.Client
}

// Client talks to an OpenAI-compatible API for chat completions with
// function calling and for embeddings.
type Client struct {
	api            *openai.Client
	embedModel     string
	embedDims      int
	store          bool
	initialBackoff time.Duration
}

// New creates a client for cfg.
func New(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = defaultBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return &Client{
		api:            openai.NewClientWithConfig(clientCfg),
		embedModel:     cfg.EmbedModel,
		embedDims:      cfg.EmbedDimensions,
		store:          cfg.StoreCompletions,
		initialBackoff: initialBackoff,
	}
}

// Complete sends a chat completion request. Rate-limited requests are retried
// with exponential backoff; other errors are returned as-is so callers can
// detect context deadlines.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	apiReq := c.buildRequest(req)

	var lastErr error
	for attempt := range maxRetries {
		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			metrics.ModelRequestsTotal.WithLabelValues(req.Model, "success").Inc()
			metrics.ModelRequestDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
			metrics.ModelTokensTotal.WithLabelValues(req.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.ModelTokensTotal.WithLabelValues(req.Model, "completion").Add(float64(resp.Usage.CompletionTokens))
			return convertResponse(resp)
		}
		metrics.ModelRequestsTotal.WithLabelValues(req.Model, "error").Inc()
		if !isRateLimit(err) {
			return Response{}, fmt.Errorf("chat completion with %s: %w", req.Model, err)
		}
		lastErr = err
		if attempt < maxRetries-1 {
			if err := c.sleep(ctx, attempt); err != nil {
				return Response{}, err
			}
		}
	}
	return Response{}, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// Embed returns the embedding of text using the configured embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(c.embedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.embedDims > 0 {
		req.Dimensions = c.embedDims
	}

	var lastErr error
	for attempt := range maxRetries {
		start := time.Now()
		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err == nil {
			if len(resp.Data) == 0 {
				metrics.EmbeddingRequestsTotal.WithLabelValues(c.embedModel, "error").Inc()
				return nil, fmt.Errorf("empty embedding response from %s", c.embedModel)
			}
			metrics.EmbeddingRequestsTotal.WithLabelValues(c.embedModel, "success").Inc()
			metrics.EmbeddingRequestDuration.WithLabelValues(c.embedModel).Observe(time.Since(start).Seconds())
			return resp.Data[0].Embedding, nil
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(c.embedModel, "error").Inc()
		if !isRateLimit(err) {
			return nil, fmt.Errorf("embedding with %s: %w", c.embedModel, err)
		}
		lastErr = err
		if attempt < maxRetries-1 {
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// EmbedModel returns the name of the embedding model.
func (c *Client) EmbedModel() string {
	return c.embedModel
}

// Ping verifies the provider is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	backoff := time.Duration(float64(c.initialBackoff) * math.Pow(2, float64(attempt)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

func (c *Client) buildRequest(req Request) openai.ChatCompletionRequest {
	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
	}
	if c.store && len(req.Metadata) > 0 {
		apiReq.Store = true
		apiReq.Metadata = req.Metadata
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		apiReq.Messages = append(apiReq.Messages, msg)
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if req.ResponseFormat != nil {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.ResponseFormat.Name,
				Schema: req.ResponseFormat.Schema,
			},
		}
	}
	return apiReq
}

func convertResponse(resp openai.ChatCompletionResponse) (Response, error) {
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("chat completion returned no choices")
	}
	choice := resp.Choices[0]
	msg := Message{
		Role:    choice.Message.Role,
		Content: choice.Message.Content,
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return Response{
		Message:      msg,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// IsTransient reports whether err is a provider failure worth retrying later:
// rate limiting or a 5xx response.
func IsTransient(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests || statusCode(err) >= http.StatusInternalServerError
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRateLimit(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests
}
