package port

import "context"

// EmbeddingProvider abstracts the backend that turns bounded text into vectors.
// Implementations can target OpenAI, Ollama, or any compatible API.
type EmbeddingProvider interface {
	// ModelName returns the identifier of the embedding model.
	ModelName() string

	// Dimension returns the length of every vector the provider produces.
	Dimension() int

	// EmbedOne generates a vector embedding for the given text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result is order-preserving with one vector per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
