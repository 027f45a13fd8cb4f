package rag

import (
	"context"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
)

// QueryResult is the outcome of one question. On failure Err is set and Answer is empty.
type QueryResult struct {
	Answer string
	Chunks []models.Chunk
	Err    error
	// Guidance marks a non-error message returned in place of an answer, such as a
	// comparison requested with too few documents.
	Guidance bool
}

// Kind classifies Err.
func (r QueryResult) Kind() ErrorKind {
	return KindOf(r.Err)
}

// qaChain is bound when the engine reaches StateQAReady.
type qaChain struct {
	index     Index
	generator generation.Generator
	topK      int
	timeout   time.Duration
}

func (c *qaChain) ask(ctx context.Context, question string) QueryResult {
	chunks, err := c.index.Retrieve(ctx, question, c.topK)
	if err != nil {
		return QueryResult{Err: &RetrievalError{Err: err}}
	}

	genCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	answer, err := c.generator.Generate(genCtx, BuildPrompt(chunks, question))
	if err != nil {
		return QueryResult{Err: &GenerationError{Err: err}}
	}
	return QueryResult{Answer: strings.TrimSpace(answer), Chunks: chunks}
}
