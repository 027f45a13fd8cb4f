package rag

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const qaTemplate = `Use the following pieces of context to answer the question at the end.
Answer only from the context. If the context does not contain the answer, say that you don't know; do not make up an answer.
Answer in as much detail as the context allows.

Context:
%s

Question: %s

Detailed answer:`

// InsufficientDocumentsMessage is returned instead of a comparison when fewer than two
// documents are registered.
const InsufficientDocumentsMessage = "At least 2 documents are needed for a comparison. Upload more documents and try again."

// BuildPrompt renders the answering prompt with the chunk texts as context.
func BuildPrompt(chunks []models.Chunk, question string) string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return fmt.Sprintf(qaTemplate, strings.Join(texts, "\n\n"), question)
}

// ComparisonQuestion asks for a structured comparison of the named documents. Each
// name appears exactly once.
func ComparisonQuestion(names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following %d documents are available:\n", len(names))
	for _, n := range names {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	b.WriteString(`
Based on their content, compare them and answer:

1. Core questions: what problem does each document address, and where do they agree or differ?
2. Methodology: what methods or approaches does each use, and how do these compare?
3. Structure: how is each argument or framework organized?
4. Follow-up research: which open questions are worth investigating next?
5. Alternatives: what other approaches or perspectives could be taken?

Ground every point in the context and give concrete, actionable suggestions.`)
	return b.String()
}
