package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func TestSQLiteStorage_ChunksAndManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunks.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.Manifest(ctx); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("expected ErrNoManifest on empty store, got %v", err)
	}

	chunks := []models.Chunk{
		{ID: "c1", Seq: 1, Text: "second", SourceFile: "a.pdf", Page: models.PageIndex(3)},
		{ID: "c0", Seq: 0, Text: "first", SourceFile: "a.pdf", Page: models.PageIndex(0)},
		{ID: "c2", Seq: 2, Text: "third", SourceFile: "notes.md"},
	}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	m := &Manifest{BuildID: "b1", EmbeddingModel: "mock-8", Dimensions: 8, ChunkCount: 3, CreatedAt: time.Now()}
	if err := store.WriteManifest(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := OpenSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Close()

	got, err := ro.ListChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if got[0].ID != "c0" || got[1].ID != "c1" || got[2].ID != "c2" {
		t.Errorf("chunks not ordered by seq: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[1].Page == nil || *got[1].Page != 3 {
		t.Errorf("page not round-tripped: %v", got[1].Page)
	}
	if got[2].Page != nil {
		t.Errorf("pageless chunk came back with page %d", *got[2].Page)
	}

	gm, err := ro.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if gm.BuildID != "b1" || gm.EmbeddingModel != "mock-8" || gm.Dimensions != 8 || gm.ChunkCount != 3 {
		t.Errorf("manifest = %+v", gm)
	}

	n, err := ro.CountChunks(ctx)
	if err != nil || n != 3 {
		t.Errorf("CountChunks = %d, %v", n, err)
	}

	if err := ro.WriteManifest(ctx, m); err == nil {
		t.Error("read-only store should reject writes")
	}
}

func TestSQLiteStorage_DuplicateChunkRollsBack(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	err = store.BatchCreateChunks(ctx, []models.Chunk{
		{ID: "dup", Seq: 0, Text: "a", SourceFile: "a.pdf"},
		{ID: "dup", Seq: 1, Text: "b", SourceFile: "a.pdf"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
	if n, _ := store.CountChunks(ctx); n != 0 {
		t.Errorf("failed batch should insert nothing, got %d", n)
	}
}

func TestSQLiteStorage_PathWithURICharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx?v=1#a%20b", "chunks.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	m := &Manifest{BuildID: "b7", EmbeddingModel: "mock-8", Dimensions: 8, ChunkCount: 0, CreatedAt: time.Now()}
	if err := store.WriteManifest(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database not created at the given path: %v", err)
	}

	ro, err := OpenSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Close()
	got, err := ro.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.BuildID != "b7" {
		t.Errorf("build id = %q, want b7", got.BuildID)
	}
}

func TestOpenSQLiteStorage_Missing(t *testing.T) {
	_, err := OpenSQLiteStorage(filepath.Join(t.TempDir(), "missing.db"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestOpenSQLiteStorage_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	if err := os.WriteFile(path, []byte("this is not sqlite at all, just some text padding it out"), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := OpenSQLiteStorage(path)
	if err != nil {
		return
	}
	defer store.Close()
	if _, err := store.ListChunks(context.Background()); err == nil {
		t.Error("expected error reading a non-database file")
	}
}
