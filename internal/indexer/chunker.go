// Package indexer chunks page text and maintains the persisted vector index over the chunks.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, words, then single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text recursively on a separator hierarchy into chunks of at most
// chunkSize characters, carrying up to chunkOverlap characters from the end of one
// chunk into the next.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// A non-positive size selects the default; an overlap that is not smaller than the
// size is reduced to a fifth of it.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}
}

// Chunk splits every page separately, so each chunk belongs to exactly one page and
// inherits its source file and page index. Seq numbers run across all pages.
func (c *Chunker) Chunk(pages []models.Page) []models.Chunk {
	var chunks []models.Chunk
	for _, p := range pages {
		for _, text := range c.SplitText(Preprocess(p.Text)) {
			seq := len(chunks)
			chunk := models.Chunk{
				ID:         fileid.ChunkID(p.Source, seq),
				Seq:        seq,
				Text:       text,
				SourceFile: p.Source,
			}
			if p.Index != nil {
				chunk.Page = models.PageIndex(*p.Index)
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// SplitText returns the chunk texts for a single string. Chunks are trimmed and never empty.
func (c *Chunker) SplitText(text string) []string {
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var final, fits []string
	for _, s := range splitOn(text, separator) {
		if utf8.RuneCountInString(s) < c.chunkSize {
			fits = append(fits, s)
			continue
		}
		if len(fits) > 0 {
			final = append(final, c.merge(fits, separator)...)
			fits = nil
		}
		if len(rest) == 0 {
			final = append(final, s)
		} else {
			final = append(final, c.split(s, rest)...)
		}
	}
	if len(fits) > 0 {
		final = append(final, c.merge(fits, separator)...)
	}
	return final
}

// merge packs consecutive splits into chunks no longer than chunkSize, starting each new
// chunk with the trailing splits of the previous one up to chunkOverlap characters.
func (c *Chunker) merge(splits []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)
	joinCost := func(current []string) int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	var docs, current []string
	total := 0
	for _, s := range splits {
		n := utf8.RuneCountInString(s)
		if total+n+joinCost(current) > c.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.chunkOverlap || (total > 0 && total+n+joinCost(current) > c.chunkSize) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, s)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitOn splits text on separator, or into single characters when separator is empty.
// Empty pieces are dropped.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
