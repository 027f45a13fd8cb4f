package indexer

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
)

func testChunks() []models.Chunk {
	pages := []models.Page{
		{Source: "go.pdf", Index: models.PageIndex(0), Text: "Goroutines are lightweight threads managed by the Go runtime."},
		{Source: "go.pdf", Index: models.PageIndex(1), Text: "Channels connect concurrent goroutines."},
		{Source: "rust.md", Text: "Ownership rules are checked at compile time."},
	}
	return NewChunker(1000, 200).Chunk(pages)
}

// failingEmbedder fails every batch call.
type failingEmbedder struct {
	*embedding.MockEmbedder
}

func (f failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func TestIndexer_BuildAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndexer(dir, embedding.NewMockEmbedder(16))
	chunks := testChunks()
	ctx := context.Background()

	_, err := idx.Retrieve(ctx, "anything", 1)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, idx.Build(ctx, chunks))
	assert.True(t, idx.Ready())
	assert.True(t, idx.Exists())
	assert.Equal(t, 3, idx.Size())

	// The mock embedder maps identical text to identical vectors.
	got, err := idx.Retrieve(ctx, chunks[1].Text, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[1].ID, got[0].ID)
	assert.Equal(t, "go.pdf", got[0].SourceFile)

	all, err := idx.Retrieve(ctx, "ownership", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3, "k larger than the corpus returns every chunk")

	m := idx.Manifest()
	require.NotNil(t, m)
	assert.Equal(t, "mock-16", m.EmbeddingModel)
	assert.Equal(t, 16, m.Dimensions)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "staging files are cleaned up")
}

func TestIndexer_LoadReturnsSameResults(t *testing.T) {
	dir := t.TempDir()
	emb := embedding.NewMockEmbedder(16)
	built := NewIndexer(dir, emb)
	ctx := context.Background()
	require.NoError(t, built.Build(ctx, testChunks()))

	loaded := NewIndexer(dir, emb)
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, built.Size(), loaded.Size())
	assert.Equal(t, built.Manifest().BuildID, loaded.Manifest().BuildID)

	for _, q := range []string{"threads", "compile time", "channels"} {
		a, err := built.Retrieve(ctx, q, 3)
		require.NoError(t, err)
		b, err := loaded.Retrieve(ctx, q, 3)
		require.NoError(t, err)
		assert.Equal(t, a, b, "query %q", q)
	}
}

func TestIndexer_EmptyCorpusKeepsPriorIndex(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndexer(dir, embedding.NewMockEmbedder(8))
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx, testChunks()))
	before, err := os.ReadFile(filepath.Join(dir, VectorFileName))
	require.NoError(t, err)

	err = idx.Build(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	after, err := os.ReadFile(filepath.Join(dir, VectorFileName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 3, idx.Size())
}

func TestIndexer_FailedBuildKeepsPriorIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	good := NewIndexer(dir, embedding.NewMockEmbedder(8))
	require.NoError(t, good.Build(ctx, testChunks()))
	buildID := good.Manifest().BuildID

	bad := NewIndexer(dir, failingEmbedder{embedding.NewMockEmbedder(8)})
	err := bad.Build(ctx, testChunks())
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, err.Error(), "embedding service down")

	reloaded := NewIndexer(dir, embedding.NewMockEmbedder(8))
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, buildID, reloaded.Manifest().BuildID)
}

func TestIndexer_LoadRejectsOtherEmbeddingModel(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, NewIndexer(dir, embedding.NewMockEmbedder(8)).Build(ctx, testChunks()))

	other := NewIndexer(dir, embedding.NewMockEmbedder(12))
	err := other.Load(ctx)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, ErrIncompatible)
	assert.False(t, other.Ready())
}

func TestIndexer_LoadRejectsCorruptVectors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)
	require.NoError(t, NewIndexer(dir, emb).Build(ctx, testChunks()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorFileName), []byte("garbage"), 0644))

	var loadErr *LoadError
	require.ErrorAs(t, NewIndexer(dir, emb).Load(ctx), &loadErr)
}

func TestIndexer_LoadRejectsMixedBuilds(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, NewIndexer(first, emb).Build(ctx, testChunks()))
	require.NoError(t, NewIndexer(second, emb).Build(ctx, testChunks()))

	data, err := os.ReadFile(filepath.Join(second, VectorFileName))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first, VectorFileName), data, 0644))

	err = NewIndexer(first, emb).Load(ctx)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestIndexer_LoadOrBuild(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)

	out, err := NewIndexer(dir, emb).LoadOrBuild(ctx, testChunks(), false)
	require.NoError(t, err)
	assert.False(t, out.Loaded, "nothing persisted yet")

	idx := NewIndexer(dir, emb)
	out, err = idx.LoadOrBuild(ctx, nil, false)
	require.NoError(t, err)
	assert.True(t, out.Loaded, "existing index is loaded without chunks")
	firstBuild := idx.Manifest().BuildID

	out, err = idx.LoadOrBuild(ctx, testChunks(), true)
	require.NoError(t, err)
	assert.False(t, out.Loaded)
	assert.NotEqual(t, firstBuild, idx.Manifest().BuildID, "force rebuilds")
}

func TestIndexer_LoadOrBuildRecoversFromUnusableIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorFileName), []byte("junk"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChunkStoreFileName), []byte("junk"), 0644))

	idx := NewIndexer(dir, embedding.NewMockEmbedder(8))
	out, err := idx.LoadOrBuild(ctx, testChunks(), false)
	require.NoError(t, err)
	assert.False(t, out.Loaded)
	assert.Error(t, out.LoadErr)
	assert.True(t, idx.Ready())

	require.NoError(t, NewIndexer(dir, embedding.NewMockEmbedder(8)).Load(ctx))
}

func TestIndexer_LoadOrBuildRebuildsOversizedDimension(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)
	chunks := testChunks()[:1]
	require.NoError(t, NewIndexer(dir, emb).Build(ctx, chunks))

	path := filepath.Join(dir, VectorFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// magic, version, label length, label, then the dimension word.
	dimAt := 12 + int(binary.LittleEndian.Uint32(data[8:12]))
	binary.LittleEndian.PutUint32(data[dimAt:], 0xFFFFFFF0)
	require.NoError(t, os.WriteFile(path, data, 0644))

	idx := NewIndexer(dir, emb)
	out, err := idx.LoadOrBuild(ctx, chunks, false)
	require.NoError(t, err)
	assert.False(t, out.Loaded)
	var loadErr *LoadError
	assert.ErrorAs(t, out.LoadErr, &loadErr)
	assert.True(t, idx.Ready())
	assert.Equal(t, 1, idx.Size())
}

func TestIndexer_Reset(t *testing.T) {
	idx := NewIndexer(t.TempDir(), embedding.NewMockEmbedder(8))
	require.NoError(t, idx.Build(context.Background(), testChunks()))
	idx.Reset()
	assert.False(t, idx.Ready())
	assert.Equal(t, 0, idx.Size())
	assert.True(t, idx.Exists(), "reset does not delete persisted files")
}

func TestIndexer_EmbedBatches(t *testing.T) {
	idx := NewIndexer(t.TempDir(), embedding.NewMockEmbedder(8), WithEmbedBatch(2))
	require.NoError(t, idx.Build(context.Background(), testChunks()))
	assert.Equal(t, 3, idx.Size())
}
