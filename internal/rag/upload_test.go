package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\notes.txt`, "notes.txt"},
		{"my report (final).pdf", "my_report_final.pdf"},
		{".hidden.txt", "hidden.txt"},
		{"._resource.txt", "resource.txt"},
		{"論文.pdf", "論文.pdf"},
		{"../..", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SecureFilename(tt.in))
		})
	}
}

func TestEngine_UploadAndReindex(t *testing.T) {
	f := newFixture(t)
	f.write(t, "existing.txt", "Already here.")
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureReady(ctx, false))

	saved, err := f.engine.UploadAndReindex(ctx, []Upload{
		{Name: "../new doc.txt", Content: strings.NewReader("Fresh upload.")},
		{Name: "image.png", Content: strings.NewReader("not text")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new_doc.txt"}, saved)

	data, err := os.ReadFile(filepath.Join(f.docsDir, "new_doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Fresh upload.", string(data))
	assert.NoFileExists(t, filepath.Join(f.docsDir, "image.png"))

	assert.Equal(t, StateQAReady, f.engine.State())
	names, err := f.engine.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"existing.txt", "new_doc.txt"}, names)
}

func TestEngine_UploadNothingValid(t *testing.T) {
	f := newFixture(t)
	saved, err := f.engine.UploadAndReindex(context.Background(), []Upload{
		{Name: "evil.exe", Content: strings.NewReader("x")},
		{Name: "...", Content: strings.NewReader("x")},
	})
	assert.ErrorIs(t, err, ErrNoValidUploads)
	assert.Empty(t, saved)
	assert.Equal(t, StateEmpty, f.engine.State())
	entries, err := os.ReadDir(f.docsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_UploadReturnsSavedOnRebuildFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.fail.Store(true)
	saved, err := f.engine.UploadAndReindex(context.Background(), []Upload{
		{Name: "doc.txt", Content: strings.NewReader("content")},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"doc.txt"}, saved)
	assert.FileExists(t, filepath.Join(f.docsDir, "doc.txt"))
}
