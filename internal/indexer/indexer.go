package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// File names inside the index directory. Both files form one persisted index and are
// tied together by the build ID in the manifest and the vector file label.
const (
	VectorFileName     = "index.vec"
	ChunkStoreFileName = "chunks.db"
)

const defaultEmbedBatch = 64

var (
	// ErrEmptyCorpus is returned by Build when there are no chunks to index.
	ErrEmptyCorpus = errors.New("no document chunks to index")
	// ErrNotReady is returned by Retrieve before a successful Build or Load.
	ErrNotReady = errors.New("vector index not ready")
	// ErrIncompatible marks a persisted index that is readable but cannot serve this configuration.
	ErrIncompatible = errors.New("persisted index is incompatible")
)

// LoadError reports a persisted index that could not be used.
type LoadError struct {
	Dir string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load index from %s: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// BuildError reports a failed build. Any previously persisted index is left in place.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build index: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Indexer embeds chunks, persists them with their vectors and answers similarity queries.
type Indexer struct {
	dir        string
	embedder   embedding.Embedder
	embedBatch int
	logger     *zap.Logger

	mu       sync.RWMutex
	vectors  *vector.MemoryIndex
	chunks   map[string]models.Chunk
	manifest *storage.Manifest
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for load/build events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithEmbedBatch sets how many chunks are embedded per embedder call during Build.
func WithEmbedBatch(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.embedBatch = n
		}
	}
}

// NewIndexer creates an indexer that persists into dir.
func NewIndexer(dir string, embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		dir:        dir,
		embedder:   embedder,
		embedBatch: defaultEmbedBatch,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Dir returns the index directory.
func (idx *Indexer) Dir() string {
	return idx.dir
}

func (idx *Indexer) vectorPath() string { return filepath.Join(idx.dir, VectorFileName) }
func (idx *Indexer) storePath() string  { return filepath.Join(idx.dir, ChunkStoreFileName) }

// Exists reports whether both halves of a persisted index are present.
func (idx *Indexer) Exists() bool {
	for _, p := range []string{idx.vectorPath(), idx.storePath()} {
		if info, err := os.Stat(p); err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// Ready reports whether the in-memory index can serve queries.
func (idx *Indexer) Ready() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.vectors != nil
}

// Size returns the number of indexed chunks.
func (idx *Indexer) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Manifest returns the manifest of the index in memory, or nil.
func (idx *Indexer) Manifest() *storage.Manifest {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.manifest == nil {
		return nil
	}
	m := *idx.manifest
	return &m
}

// Reset drops the in-memory index. Persisted files are not touched.
func (idx *Indexer) Reset() {
	idx.mu.Lock()
	idx.vectors, idx.chunks, idx.manifest = nil, nil, nil
	idx.mu.Unlock()
}

// Outcome describes what LoadOrBuild did.
type Outcome struct {
	Loaded bool
	// LoadErr is set when a persisted index existed but was rejected and rebuilt.
	LoadErr error
}

// LoadOrBuild loads the persisted index unless force is set or it is missing, and
// builds from chunks otherwise. An unusable persisted index is rebuilt, not reported.
func (idx *Indexer) LoadOrBuild(ctx context.Context, chunks []models.Chunk, force bool) (Outcome, error) {
	var out Outcome
	if !force && idx.Exists() {
		err := idx.Load(ctx)
		if err == nil {
			idx.logger.Info("index loaded", zap.String("dir", idx.dir), zap.Int("chunks", idx.Size()))
			return Outcome{Loaded: true}, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		idx.logger.Warn("persisted index unusable, rebuilding", zap.String("dir", idx.dir), zap.Error(err))
		out.LoadErr = err
	}
	if err := idx.Build(ctx, chunks); err != nil {
		return out, err
	}
	return out, nil
}

// Load replaces the in-memory index with the persisted one. Any failure is a *LoadError
// and leaves the current in-memory index unchanged.
func (idx *Indexer) Load(ctx context.Context) error {
	vectors, chunks, manifest, err := idx.readPersisted(ctx)
	if err != nil {
		return &LoadError{Dir: idx.dir, Err: err}
	}
	idx.mu.Lock()
	idx.vectors, idx.chunks, idx.manifest = vectors, chunks, manifest
	idx.mu.Unlock()
	return nil
}

func (idx *Indexer) readPersisted(ctx context.Context) (*vector.MemoryIndex, map[string]models.Chunk, *storage.Manifest, error) {
	store, err := storage.OpenSQLiteStorage(idx.storePath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open chunk store: %w", err)
	}
	defer store.Close()

	manifest, err := store.Manifest(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read manifest: %w", err)
	}
	if model := idx.embedder.ModelName(); manifest.EmbeddingModel != model {
		return nil, nil, nil, fmt.Errorf("%w: built with embedding model %q, configured %q", ErrIncompatible, manifest.EmbeddingModel, model)
	}
	if dims := idx.embedder.Dimensions(); dims > 0 && dims != manifest.Dimensions {
		return nil, nil, nil, fmt.Errorf("%w: built with %d dimensions, embedder has %d", ErrIncompatible, manifest.Dimensions, dims)
	}

	list, err := store.ListChunks(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read chunks: %w", err)
	}
	vectors, err := vector.LoadMemoryIndex(idx.vectorPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read vectors: %w", err)
	}
	if vectors.Label() != manifest.BuildID {
		return nil, nil, nil, fmt.Errorf("%w: vector file and chunk store come from different builds", ErrIncompatible)
	}
	if vectors.Dimensions() != manifest.Dimensions {
		return nil, nil, nil, fmt.Errorf("%w: vector file has %d dimensions, manifest %d", ErrIncompatible, vectors.Dimensions(), manifest.Dimensions)
	}
	if vectors.Size() != len(list) || manifest.ChunkCount != len(list) {
		return nil, nil, nil, fmt.Errorf("%w: %d vectors, %d chunks, manifest says %d", ErrIncompatible, vectors.Size(), len(list), manifest.ChunkCount)
	}

	chunks := make(map[string]models.Chunk, len(list))
	for _, c := range list {
		chunks[c.ID] = c
	}
	for _, id := range vectors.IDs() {
		if _, ok := chunks[id]; !ok {
			return nil, nil, nil, fmt.Errorf("%w: vector %s has no chunk", ErrIncompatible, id)
		}
	}
	return vectors, chunks, manifest, nil
}

// Build embeds chunks, writes a new persisted index and swaps it in. Files are staged
// under temporary names in the index directory and renamed over the previous index only
// after both are complete; on any failure the previous index, on disk and in memory,
// is kept. An empty chunk list fails with ErrEmptyCorpus before anything is written.
func (idx *Indexer) Build(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return ErrEmptyCorpus
	}
	start := time.Now()

	vecs, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return &BuildError{Err: err}
	}
	vectors, err := vector.NewMemoryIndex(len(vecs[0]))
	if err != nil {
		return &BuildError{Err: err}
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := vectors.Add(ctx, ids, vecs); err != nil {
		return &BuildError{Err: err}
	}

	manifest := &storage.Manifest{
		BuildID:        uuid.New().String(),
		EmbeddingModel: idx.embedder.ModelName(),
		Dimensions:     vectors.Dimensions(),
		ChunkCount:     len(chunks),
		CreatedAt:      time.Now().UTC(),
	}
	vectors.SetLabel(manifest.BuildID)
	if err := idx.persist(ctx, vectors, chunks, manifest); err != nil {
		return &BuildError{Err: err}
	}

	byID := make(map[string]models.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	idx.mu.Lock()
	idx.vectors, idx.chunks, idx.manifest = vectors, byID, manifest
	idx.mu.Unlock()

	idx.logger.Info("index built",
		zap.String("dir", idx.dir),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", manifest.Dimensions),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (idx *Indexer) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vecs := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += idx.embedBatch {
		end := start + idx.embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		out, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("embed chunks: got %d vectors for %d texts", len(out), len(texts))
		}
		vecs = append(vecs, out...)
		idx.logger.Debug("chunks embedded", zap.Int("done", len(vecs)), zap.Int("total", len(chunks)))
	}
	return vecs, nil
}

func (idx *Indexer) persist(ctx context.Context, vectors *vector.MemoryIndex, chunks []models.Chunk, manifest *storage.Manifest) error {
	if err := os.MkdirAll(idx.dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	suffix := ".tmp-" + manifest.BuildID
	stagedVectors := filepath.Join(idx.dir, "."+VectorFileName+suffix)
	stagedStore := filepath.Join(idx.dir, "."+ChunkStoreFileName+suffix)
	defer os.Remove(stagedVectors)
	defer os.Remove(stagedStore)

	if err := vectors.Save(stagedVectors); err != nil {
		return err
	}
	store, err := storage.NewSQLiteStorage(stagedStore)
	if err != nil {
		return err
	}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		store.Close()
		return fmt.Errorf("write chunks: %w", err)
	}
	if err := store.WriteManifest(ctx, manifest); err != nil {
		store.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("close chunk store: %w", err)
	}

	// The chunk store goes first; a crash between the renames leaves mismatched build
	// IDs, which Load rejects.
	if err := os.Rename(stagedStore, idx.storePath()); err != nil {
		return fmt.Errorf("install chunk store: %w", err)
	}
	if err := os.Rename(stagedVectors, idx.vectorPath()); err != nil {
		return fmt.Errorf("install vectors: %w", err)
	}
	return nil
}

// Retrieve returns the k chunks most similar to query, best first.
func (idx *Indexer) Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	idx.mu.RLock()
	vectors, chunks := idx.vectors, idx.chunks
	idx.mu.RUnlock()
	if vectors == nil {
		return nil, ErrNotReady
	}

	q, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := vectors.Search(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]models.Chunk, 0, len(hits))
	for _, h := range hits {
		if c, ok := chunks[h.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
