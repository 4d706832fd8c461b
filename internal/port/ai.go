package port

import "context"

// EmbeddingProvider abstracts the embedding backend. Implementations can
// target OpenAI or any API compatible with its embeddings endpoint.
type EmbeddingProvider interface {
	// ModelName returns the identifier of the embedding model being used.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result is ordered 1:1 with texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationProvider abstracts the text-generation backend used for grounded answers.
type GenerationProvider interface {
	// ModelName returns the identifier of the generation model being used.
	ModelName() string

	// Generate sends a system instruction plus a user prompt and returns the completion.
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
