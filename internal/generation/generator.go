// Package generation wraps the language model that writes answers from retrieved context.
package generation

import "context"

// Generator turns a fully rendered prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}
