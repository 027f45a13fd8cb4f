// Package storage persists the chunk half of the document index and its manifest.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// Manifest describes one persisted index build. BuildID is also stamped into the
// vector file so the two halves can be checked against each other on load.
type Manifest struct {
	BuildID        string
	EmbeddingModel string
	Dimensions     int
	ChunkCount     int
	CreatedAt      time.Time
}

// ChunkStore holds the chunks of a single index build.
type ChunkStore interface {
	WriteManifest(ctx context.Context, m *Manifest) error
	Manifest(ctx context.Context) (*Manifest, error)

	BatchCreateChunks(ctx context.Context, chunks []models.Chunk) error
	ListChunks(ctx context.Context) ([]models.Chunk, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
