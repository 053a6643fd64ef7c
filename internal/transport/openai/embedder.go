// Package openai adapts the OpenAI-compatible HTTP API to the domain
// provider contracts: embeddings and chat completions.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lorehound/lorehound/internal/domain"
	"github.com/lorehound/lorehound/internal/metrics"
)

// DefaultMaxBatchSize caps inputs per embedding call.
const DefaultMaxBatchSize = 64

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client      *openai.Client
	model       openai.EmbeddingModel
	dimensions  int
	maxBatch    int
	maxAttempts int
	timeout     time.Duration
	logger      *zap.Logger
}

// EmbedderConfig holds the embedding provider settings.
type EmbedderConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Dimensions   int
	MaxBatchSize int
	MaxAttempts  int
	Timeout      time.Duration
	Logger       *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *EmbedderConfig) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       openai.EmbeddingModel(cfg.Model),
		dimensions:  cfg.Dimensions,
		maxBatch:    maxBatch,
		maxAttempts: maxAttempts,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.embedInputs(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// EmbedBatch implements domain.BatchEmbedder. Inputs beyond the batch cap
// are split into sequential provider calls; order is preserved.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for start := 0; start < len(texts); start += e.maxBatch {
		end := start + e.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		res, err := e.embedInputs(ctx, texts[start:end])
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// embedInputs runs one embedding call with retries on rate limits and 5xx.
func (e *Embedder) embedInputs(ctx context.Context, inputs []string) (domain.BatchEmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          inputs,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if e.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		}

		start := time.Now()
		resp, err := e.client.CreateEmbeddings(callCtx, req)
		duration := time.Since(start)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if len(resp.Data) != len(inputs) {
				metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
				metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "count_mismatch").Inc()
				return domain.BatchEmbeddingResult{}, fmt.Errorf(
					"embedding count mismatch: sent %d inputs, got %d vectors: %w",
					len(inputs), len(resp.Data), domain.ErrEmbeddingFailed)
			}

			metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "success").Inc()
			metrics.EmbeddingRequestDuration.WithLabelValues(string(e.model)).Observe(duration.Seconds())
			if resp.Usage.TotalTokens > 0 {
				metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "prompt").Add(float64(resp.Usage.PromptTokens))
				metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "total").Add(float64(resp.Usage.TotalTokens))
			}

			vectors := make([][]float32, len(inputs))
			for i, d := range resp.Data {
				idx := d.Index
				if idx < 0 || idx >= len(vectors) {
					idx = i
				}
				vectors[idx] = d.Embedding
			}
			return domain.BatchEmbeddingResult{
				Embeddings:   vectors,
				PromptTokens: resp.Usage.PromptTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			}, nil
		}

		lastErr = err
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), errorLabel(err)).Inc()

		if !isRetryable(err) || attempt == e.maxAttempts {
			break
		}

		backoff := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
		e.logger.Debug("Retrying embedding call",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding canceled: %w: %w", domain.ErrEmbeddingFailed, ctx.Err())
		case <-time.After(backoff):
		}
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
	return domain.BatchEmbeddingResult{}, parseAPIError(lastErr, domain.ErrEmbeddingFailed)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// statusCode extracts the HTTP status from an API error, 0 when absent.
func statusCode(err error) int {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	return 0
}

// isRetryable reports whether a provider error is worth another attempt.
// Rate limits, 5xx and transport-level failures are; 4xx are not.
func isRetryable(err error) bool {
	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests:
		return true
	case code >= http.StatusInternalServerError:
		return true
	case code != 0:
		return false
	}
	return true
}

func errorLabel(err error) string {
	if statusCode(err) == http.StatusTooManyRequests {
		return "rate_limited"
	}
	return "api_error"
}

// parseAPIError extracts a human-readable error from the API response and
// wraps it with the given sentinel. Rate limits map to ErrRateLimited.
func parseAPIError(err error, wrap error) error {
	if err == nil {
		return wrap
	}
	if statusCode(err) == http.StatusTooManyRequests {
		wrap = domain.ErrRateLimited
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("provider error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("provider error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("provider request failed: %w: %w", wrap, err)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
