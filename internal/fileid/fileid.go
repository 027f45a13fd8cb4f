// Package fileid provides deterministic identifiers for registered documents and their chunks.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const prefix = "doc:"

// DocID returns a stable identifier for a document name. Names are compared
// after filepath.Clean, so "a.pdf" and "./a.pdf" share an ID.
func DocID(name string) string {
	normalized := filepath.Clean(name)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// ChunkID identifies the seq-th chunk of the corpus that came from the named document.
func ChunkID(name string, seq int) string {
	return fmt.Sprintf("%s#%d", DocID(name)[:len(prefix)+16], seq)
}
