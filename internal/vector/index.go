// Package vector provides the nearest-neighbor half of the persisted document index.
package vector

import "context"

// VectorIndex stores embeddings by chunk ID and answers similarity queries.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single search hit. ID is the chunk ID.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}
