// Package registry tracks the documents found in the documents folder and their pages.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Loader turns one file into its ordered pages.
type Loader interface {
	Load(ctx context.Context, path string) ([]models.Page, error)
}

// Registry maps document names to their extracted pages. A Load replaces the whole
// set at once; readers never see a partially loaded folder.
type Registry struct {
	dir        string
	extensions map[string]bool
	loader     Loader
	logger     *zap.Logger

	mu   sync.RWMutex
	docs map[string]*models.SourceDocument
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for load events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates a registry over dir that accepts the given extensions (".pdf" or "pdf").
func New(dir string, extensions []string, loader Loader, opts ...Option) *Registry {
	r := &Registry{
		dir:        dir,
		extensions: make(map[string]bool, len(extensions)),
		loader:     loader,
		logger:     zap.NewNop(),
		docs:       make(map[string]*models.SourceDocument),
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.extensions[ext] = true
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dir returns the documents folder.
func (r *Registry) Dir() string {
	return r.dir
}

// Accepts reports whether a file name has one of the registry's extensions.
// Hidden files never match.
func (r *Registry) Accepts(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return r.extensions[strings.ToLower(filepath.Ext(base))]
}

// Load clears the registry and reads every accepted file in the folder, creating the
// folder when it does not exist. A file that fails to load is logged and skipped.
// The returned pages are in name order, then page order.
func (r *Registry) Load(ctx context.Context) ([]models.Page, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, fmt.Errorf("create documents folder: %w", err)
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read documents folder: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !r.Accepts(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	r.logger.Info("documents found", zap.String("dir", r.dir), zap.Int("count", len(names)))

	docs := make(map[string]*models.SourceDocument, len(names))
	var pages []models.Page
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := r.loader.Load(ctx, filepath.Join(r.dir, name))
		if err != nil {
			r.logger.Warn("document load failed", zap.String("name", name), zap.Error(err))
			continue
		}
		for i := range loaded {
			loaded[i].Source = name
		}
		docs[name] = &models.SourceDocument{Name: name, Pages: loaded}
		pages = append(pages, loaded...)
		r.logger.Debug("document loaded", zap.String("name", name), zap.Int("pages", len(loaded)))
	}

	r.mu.Lock()
	r.docs = docs
	r.mu.Unlock()
	return pages, nil
}

// Clear removes every document.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.docs = make(map[string]*models.SourceDocument)
	r.mu.Unlock()
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Names returns the registered document names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.docs))
	for name := range r.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document returns the named document.
func (r *Registry) Document(name string) (*models.SourceDocument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[name]
	return doc, ok
}

// Pages returns every registered page in name order, then page order.
func (r *Registry) Pages() []models.Page {
	var pages []models.Page
	for _, name := range r.Names() {
		if doc, ok := r.Document(name); ok {
			pages = append(pages, doc.Pages...)
		}
	}
	return pages
}
