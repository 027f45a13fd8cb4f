// Package models defines the data carried between the registry, the index and the answering engine.
package models

// Page is one unit of text extracted from a source document.
// Index is the 0-based page number for paginated formats and nil otherwise.
type Page struct {
	Source string `json:"source_file"`
	Index  *int   `json:"page,omitempty"`
	Text   string `json:"text"`
}

// SourceDocument is a file from the documents folder with its extracted pages in order.
type SourceDocument struct {
	Name  string `json:"name"`
	Pages []Page `json:"pages"`
}

// Chunk is a bounded span of page text and the unit of retrieval.
type Chunk struct {
	ID         string `json:"id" db:"id"`
	Seq        int    `json:"seq" db:"seq"`
	Text       string `json:"text" db:"content"`
	SourceFile string `json:"source_file" db:"source_file"`
	Page       *int   `json:"page,omitempty" db:"page"`
}

// PageIndex returns a pointer to i, for building pages and chunks.
func PageIndex(i int) *int {
	return &i
}
