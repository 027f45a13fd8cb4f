package rag

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Citations renders one citation per distinct source and page, in first-seen order.
// Chunks without a source file or with a negative page are skipped.
func Citations(chunks []models.Chunk) []models.Citation {
	out := make([]models.Citation, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		display, ok := citationDisplay(c)
		if !ok || seen[display] {
			continue
		}
		seen[display] = true
		out = append(out, models.Citation{Display: display})
	}
	return out
}

// citationDisplay is "<source> (p.<n>)" with a 1-based page, or just the source.
func citationDisplay(c models.Chunk) (string, bool) {
	source := strings.TrimSpace(c.SourceFile)
	if source == "" {
		return "", false
	}
	if c.Page == nil {
		return source, true
	}
	if *c.Page < 0 {
		return "", false
	}
	return fmt.Sprintf("%s (p.%d)", source, *c.Page+1), true
}
