// Package embedding turns text into vectors for the document index.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector length, or 0 when it is not known until the first call.
	Dimensions() int
	// ModelName identifies the model; persisted indexes record it to detect incompatible embeddings.
	ModelName() string
	Close() error
}
