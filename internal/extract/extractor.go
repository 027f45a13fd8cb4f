// Package extract loads documents from disk as ordered pages of text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// supported lists every extension ExtractPages understands.
var supported = []string{".pdf", ".docx", ".odt", ".rtf", ".pptx", ".xlsx", ".txt", ".md"}

// SupportedExtensions returns the extensions the extractor can read, with leading dots.
func SupportedExtensions() []string {
	return append([]string(nil), supported...)
}

// IsSupported reports whether the extension of name has an extractor.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range supported {
		if s == ext {
			return true
		}
	}
	return false
}

// Extractor extracts page text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Load reads the file at path and returns its pages in document order, each tagged
// with the file's base name as source.
func (e *Extractor) Load(ctx context.Context, path string) ([]models.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	pages, err := e.ExtractPages(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, err
	}
	source := filepath.Base(path)
	for i := range pages {
		pages[i].Source = source
	}
	return pages, nil
}

// ExtractPages extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). PDF pages, PPTX slides and XLSX
// sheets carry a 0-based index; the other formats yield a single page without one.
func (e *Extractor) ExtractPages(content []byte, ext string) ([]models.Page, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".pptx":
		return extractPPTX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".docx":
		return singlePage(extractDOCX(content))
	case ".odt", ".rtf":
		return singlePage(extractWithCat(content))
	case ".txt", ".md":
		return singlePage(extractPlain(content))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func singlePage(text string, err error) ([]models.Page, error) {
	if err != nil {
		return nil, err
	}
	return []models.Page{{Text: text}}, nil
}
