package rag

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Upload is a file submitted for the documents folder.
type Upload struct {
	Name    string
	Content io.Reader
}

// UploadAndReindex stores every acceptable upload in the documents folder under a
// sanitized name and then rebuilds the index from scratch. Uploads with an empty name
// after sanitizing or a disallowed extension are skipped; if none remain the result
// is ErrNoValidUploads and nothing is rebuilt. Saved names are returned even when the
// rebuild fails.
func (e *Engine) UploadAndReindex(ctx context.Context, uploads []Upload) ([]string, error) {
	var saved []string
	for _, u := range uploads {
		name := SecureFilename(u.Name)
		if name == "" || !e.docs.Accepts(name) {
			e.logger.Info("upload rejected", zap.String("name", u.Name))
			continue
		}
		if err := writeFileAtomic(e.docs.Dir(), name, u.Content); err != nil {
			return saved, fmt.Errorf("save %s: %w", name, err)
		}
		e.logger.Info("upload saved", zap.String("name", name))
		saved = append(saved, name)
	}
	if len(saved) == 0 {
		return nil, ErrNoValidUploads
	}
	if err := e.EnsureReady(ctx, true); err != nil {
		return saved, fmt.Errorf("reindex after upload: %w", err)
	}
	return saved, nil
}

// SecureFilename reduces an uploaded name to a safe base name: directory parts are
// dropped, whitespace becomes "_", and only letters, digits, "_", "-" and "." are
// kept. Non-ASCII letters survive so names in any script stay readable. Leading dots
// and underscores are stripped so the result is never hidden or a path. The result
// may be empty.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-', r == '.':
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "._")
}

// writeFileAtomic copies r into dir/name through a temporary file so readers never see
// a partial document.
func writeFileAtomic(dir, name string, r io.Reader) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
