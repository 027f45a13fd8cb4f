package rag

import (
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/indexer"
)

var (
	// ErrEmptyCorpus is returned when the loaded documents produced no chunks.
	ErrEmptyCorpus = indexer.ErrEmptyCorpus
	// ErrNotInitialized is returned for questions asked before the engine is ready.
	ErrNotInitialized = errors.New("question answering is not initialized")
	// ErrNoDocuments is returned when the documents folder holds no loadable document.
	ErrNoDocuments = errors.New("no documents found in the documents folder")
	// ErrEmptyQuestion is returned for blank questions, before any other work.
	ErrEmptyQuestion = errors.New("question cannot be empty")
	// ErrNoValidUploads is returned when none of the uploaded files could be accepted.
	ErrNoValidUploads = errors.New("no valid files uploaded")
)

// IndexLoadError reports a persisted index that was missing, corrupt or incompatible.
type IndexLoadError = indexer.LoadError

// IndexBuildError reports a failed index build.
type IndexBuildError = indexer.BuildError

// GenerationError wraps a failure of the language model call, including timeouts
// and malformed responses.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// RetrievalError wraps a failure to embed the query or search the index.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve context: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ErrorKind classifies the error carried by a QueryResult.
type ErrorKind string

// Error kinds. KindNone means success.
const (
	KindNone           ErrorKind = ""
	KindNotInitialized ErrorKind = "not_initialized"
	KindEmptyQuestion  ErrorKind = "empty_question"
	KindRetrieval      ErrorKind = "retrieval"
	KindGeneration     ErrorKind = "generation"
	KindInternal       ErrorKind = "internal"
)

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	var genErr *GenerationError
	var retErr *RetrievalError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotInitialized):
		return KindNotInitialized
	case errors.Is(err, ErrEmptyQuestion):
		return KindEmptyQuestion
	case errors.As(err, &genErr):
		return KindGeneration
	case errors.As(err, &retErr):
		return KindRetrieval
	default:
		return KindInternal
	}
}
