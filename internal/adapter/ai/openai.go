package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stackfolio/portfolio-rag/internal/port"
)

// OpenAIConfig holds the configuration for an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL string        // e.g. https://api.openai.com
	Model   string        // e.g. text-embedding-3-small
	APIKey  string        // Bearer token
	Timeout time.Duration // per-call deadline
}

// OpenAIEmbedder implements port.EmbeddingProvider using the OpenAI embeddings
// REST API. Calls run through a circuit breaker so a failing provider trips
// fast instead of being hammered mid-batch.
type OpenAIEmbedder struct {
	cfg        OpenAIConfig
	breaker    *gobreaker.CircuitBreaker
	httpClient *http.Client
}

// NewOpenAIEmbedder creates an embedder against the configured endpoint.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		cfg:        cfg,
		breaker:    newProviderBreaker("openai-embeddings"),
		httpClient: &http.Client{},
	}
}

// ModelName returns the embedding model identifier.
func (o *OpenAIEmbedder) ModelName() string {
	return o.cfg.Model
}

// Embed generates a vector embedding for the given text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call, ordered 1:1
// with the input.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := map[string]interface{}{
		"model": o.cfg.Model,
		"input": texts,
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	result, err := o.breaker.Execute(func() (interface{}, error) {
		return postJSON(ctx, o.httpClient, o.cfg.BaseURL+"/v1/embeddings", o.cfg.APIKey, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w: %v", port.ErrEmbeddingService, err)
	}

	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result.([]byte), &resp); err != nil {
		return nil, fmt.Errorf("openai embed decode: %w: %v", port.ErrEmbeddingService, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs: %w", len(resp.Data), len(texts), port.ErrEmbeddingService)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("openai embed: index %d out of range: %w", item.Index, port.ErrEmbeddingService)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
