package indexer

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func BenchmarkChunk(b *testing.B) {
	para := strings.Repeat("Retrieval quality depends on how the corpus is split into passages. ", 12)
	text := strings.Repeat(para+"\n\n", 50)
	pages := []models.Page{{Source: "bench.pdf", Index: models.PageIndex(0), Text: text}}
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Chunk(pages)
	}
}
