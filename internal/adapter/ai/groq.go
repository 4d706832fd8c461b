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

// GroqConfig holds the configuration for a Groq-compatible chat completions endpoint.
type GroqConfig struct {
	BaseURL     string        // e.g. https://api.groq.com/openai
	Model       string        // e.g. llama3-8b-8192
	APIKey      string        // Bearer token
	MaxTokens   int           // bounds answer length
	Temperature float64       // kept low for focused answers
	Timeout     time.Duration // per-call deadline
}

// GroqGenerator implements port.GenerationProvider using the chat completions REST API.
type GroqGenerator struct {
	cfg        GroqConfig
	breaker    *gobreaker.CircuitBreaker
	httpClient *http.Client
}

// NewGroqGenerator creates a generator against the configured endpoint.
func NewGroqGenerator(cfg GroqConfig) *GroqGenerator {
	return &GroqGenerator{
		cfg:        cfg,
		breaker:    newProviderBreaker("groq-completions"),
		httpClient: &http.Client{},
	}
}

// ModelName returns the generation model identifier.
func (g *GroqGenerator) ModelName() string {
	return g.cfg.Model
}

// Generate sends a system instruction plus a user prompt and returns the completion.
func (g *GroqGenerator) Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	payload := map[string]interface{}{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"max_tokens":  g.cfg.MaxTokens,
		"temperature": g.cfg.Temperature,
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return postJSON(ctx, g.httpClient, g.cfg.BaseURL+"/v1/chat/completions", g.cfg.APIKey, payload)
	})
	if err != nil {
		return "", fmt.Errorf("groq generate: %w: %v", port.ErrGenerationService, err)
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(result.([]byte), &resp); err != nil {
		return "", fmt.Errorf("groq generate decode: %w: %v", port.ErrGenerationService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq generate: empty response: %w", port.ErrGenerationService)
	}

	return resp.Choices[0].Message.Content, nil
}
