package rag

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Compare asks the model for a structured comparison of every registered document.
// With fewer than two documents it returns InsufficientDocumentsMessage as guidance
// and never calls the model.
func (e *Engine) Compare(ctx context.Context) QueryResult {
	names := e.docs.Names()
	if len(names) < 2 {
		return QueryResult{Answer: InsufficientDocumentsMessage, Guidance: true}
	}
	qa := e.chain()
	if qa == nil {
		return QueryResult{Err: ErrNotInitialized}
	}
	e.logger.Info("comparing documents", zap.Int("documents", len(names)))
	res := qa.ask(ctx, ComparisonQuestion(names))
	if res.Err != nil {
		e.logger.Warn("comparison failed", zap.String("kind", string(res.Kind())), zap.Error(res.Err))
	}
	return res
}

// Comparison is a generated comparison with its citations.
type Comparison struct {
	Text      string
	Citations []models.Citation
	// Guidance is set when Text explains why no comparison was made.
	Guidance bool
}

// CompareDocuments makes the engine ready and compares the registered documents.
func (e *Engine) CompareDocuments(ctx context.Context) (*Comparison, error) {
	if err := e.EnsureReady(ctx, false); err != nil {
		return nil, err
	}
	res := e.Compare(ctx)
	if res.Err != nil {
		return nil, res.Err
	}
	return &Comparison{Text: res.Answer, Citations: Citations(res.Chunks), Guidance: res.Guidance}, nil
}
