// Package rag answers questions about a folder of documents: it owns the readiness
// state machine, retrieval-augmented answering, cross-document comparison and citations.
package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/registry"
	"github.com/hyperjump/kotae/internal/storage"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// Index is the persisted vector index the engine builds and queries.
type Index interface {
	LoadOrBuild(ctx context.Context, chunks []models.Chunk, force bool) (indexer.Outcome, error)
	Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error)
	Reset()
	Size() int
	Dir() string
}

// Engine drives documents through loading, indexing and answering.
//
// Transitions run under a single lock. Concurrent non-forced EnsureReady calls share
// one in-flight attempt; forced rebuilds queue behind each other so a rebuild always
// sees files written before it was requested.
type Engine struct {
	docs      *registry.Registry
	index     Index
	chunker   *indexer.Chunker
	generator generation.Generator
	topK      int
	timeout   time.Duration
	logger    *zap.Logger

	flight     singleflight.Group
	transition sync.Mutex

	// staleIndex is set by a forced rebuild until its index step succeeds, so a resumed
	// attempt rebuilds instead of loading the superseded persisted index.
	staleIndex bool

	mu    sync.RWMutex
	state State
	qa    *qaChain
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for readiness and query events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *indexer.Chunker) Option {
	return func(e *Engine) { e.chunker = c }
}

// WithGenerationTimeout bounds each language model call; zero means no bound beyond ctx.
func WithGenerationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates an engine in StateEmpty.
func NewEngine(docs *registry.Registry, index Index, generator generation.Generator, opts ...Option) *Engine {
	e := &Engine{
		docs:      docs,
		index:     index,
		chunker:   indexer.NewChunker(indexer.DefaultChunkSize, indexer.DefaultChunkOverlap),
		generator: generator,
		topK:      DefaultTopK,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the current readiness state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	if s != StateQAReady {
		e.qa = nil
	}
	e.mu.Unlock()
	if prev != s {
		e.logger.Info("readiness changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// EnsureReady advances the engine to StateQAReady. Without force it returns at once
// when already ready, and otherwise resumes from the last state reached. With force
// it clears the registry and the in-memory index and rebuilds everything from the
// documents folder. A failure leaves the state at the last completed step.
func (e *Engine) EnsureReady(ctx context.Context, force bool) error {
	if force {
		e.transition.Lock()
		defer e.transition.Unlock()
		return e.advance(ctx, true)
	}
	// The shared attempt must not die with whichever caller happened to start it.
	shared := context.WithoutCancel(ctx)
	_, err, _ := e.flight.Do("ensure", func() (interface{}, error) {
		e.transition.Lock()
		defer e.transition.Unlock()
		if e.State() == StateQAReady && e.docs.Len() > 0 {
			return nil, nil
		}
		return nil, e.advance(shared, false)
	})
	return err
}

// Rebuild is EnsureReady with force.
func (e *Engine) Rebuild(ctx context.Context) error {
	return e.EnsureReady(ctx, true)
}

// advance runs the remaining steps. The caller holds e.transition.
func (e *Engine) advance(ctx context.Context, force bool) error {
	start := time.Now()
	if force {
		e.docs.Clear()
		e.index.Reset()
		e.staleIndex = true
		e.setState(StateEmpty)
	}

	var pages []models.Page
	if e.State() == StateEmpty {
		loaded, err := e.docs.Load(ctx)
		if err != nil {
			return fmt.Errorf("load documents: %w", err)
		}
		if len(loaded) == 0 {
			return ErrNoDocuments
		}
		pages = loaded
		e.setState(StateDocumentsLoaded)
	}

	if e.State() == StateDocumentsLoaded {
		if pages == nil {
			pages = e.docs.Pages()
		}
		chunks := e.chunker.Chunk(pages)
		out, err := e.index.LoadOrBuild(ctx, chunks, force || e.staleIndex)
		if err != nil {
			e.logger.Error("index step failed", zap.Int("chunks", len(chunks)), zap.Error(err))
			return err
		}
		e.staleIndex = false
		e.logger.Info("index ready",
			zap.Bool("loaded", out.Loaded),
			zap.Int("documents", e.docs.Len()),
			zap.Int("chunks", e.index.Size()),
		)
		e.setState(StateIndexReady)
	}

	if e.State() == StateIndexReady {
		qa := &qaChain{index: e.index, generator: e.generator, topK: e.topK, timeout: e.timeout}
		e.mu.Lock()
		e.qa = qa
		e.mu.Unlock()
		e.setState(StateQAReady)
	}
	e.logger.Debug("ready", zap.Bool("forced", force), zap.Duration("took", time.Since(start)))
	return nil
}

func (e *Engine) chain() *qaChain {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateQAReady {
		return nil
	}
	return e.qa
}

// Ask answers question from the index. It does not trigger readiness; before
// StateQAReady the result carries ErrNotInitialized.
func (e *Engine) Ask(ctx context.Context, question string) QueryResult {
	qa := e.chain()
	if qa == nil {
		return QueryResult{Err: ErrNotInitialized}
	}
	res := qa.ask(ctx, question)
	if res.Err != nil {
		e.logger.Warn("question failed", zap.String("kind", string(res.Kind())), zap.Error(res.Err))
	}
	return res
}

// Answer is a generated answer with its citations.
type Answer struct {
	Text      string
	Citations []models.Citation
	Chunks    []models.Chunk
}

// AskQuestion validates the question, makes the engine ready and answers it.
func (e *Engine) AskQuestion(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if err := e.EnsureReady(ctx, false); err != nil {
		return nil, err
	}
	res := e.Ask(ctx, question)
	if res.Err != nil {
		return nil, res.Err
	}
	return &Answer{Text: res.Answer, Citations: Citations(res.Chunks), Chunks: res.Chunks}, nil
}

// ListDocuments returns the registered document names, loading the registry first
// when it is empty. It does not build the index.
func (e *Engine) ListDocuments(ctx context.Context) ([]string, error) {
	if e.docs.Len() == 0 {
		e.transition.Lock()
		defer e.transition.Unlock()
		if e.docs.Len() == 0 {
			if _, err := e.docs.Load(ctx); err != nil {
				return nil, fmt.Errorf("load documents: %w", err)
			}
		}
	}
	return e.docs.Names(), nil
}

// Status summarizes readiness and index size.
type Status struct {
	State          State
	Documents      int
	Chunks         int
	IndexDir       string
	DiskUsageBytes int64
}

// Status reports the current state without changing it.
func (e *Engine) Status() (Status, error) {
	usage, err := storage.DiskUsageBytes(e.index.Dir())
	if err != nil {
		return Status{}, fmt.Errorf("index disk usage: %w", err)
	}
	return Status{
		State:          e.State(),
		Documents:      e.docs.Len(),
		Chunks:         e.index.Size(),
		IndexDir:       e.index.Dir(),
		DiskUsageBytes: usage,
	}, nil
}
