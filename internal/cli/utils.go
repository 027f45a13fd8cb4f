// Package cli renders answers, comparisons and listings for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json" (case-insensitive).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// excerptLen is how many characters of each retrieved chunk are shown with --context.
const excerptLen = 200

const rule = "─────────────────────────────────────────────────────────"

// AnswerOutput is the JSON shape of an answer.
type AnswerOutput struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	Sources  []string        `json:"sources"`
	Context  []ContextOutput `json:"context,omitempty"`
}

// ContextOutput is one retrieved chunk in JSON output.
type ContextOutput struct {
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
	Text   string `json:"text"`
}

// WriteAnswer writes ans to w. With showContext the retrieved chunks are included,
// as excerpts in text format and in full in JSON.
func WriteAnswer(w io.Writer, question string, ans *rag.Answer, format OutputFormat, showContext bool) error {
	if format == OutputJSON {
		out := AnswerOutput{
			Question: question,
			Answer:   ans.Text,
			Sources:  models.CitationStrings(ans.Citations),
		}
		if showContext {
			for _, c := range ans.Chunks {
				out.Context = append(out.Context, ContextOutput{Source: c.SourceFile, Page: displayPage(c.Page), Text: c.Text})
			}
		}
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "\n%s\n", ans.Text)
	writeSources(w, ans.Citations)
	if showContext && len(ans.Chunks) > 0 {
		fmt.Fprintln(w, "\nContext:")
		for i, c := range ans.Chunks {
			fmt.Fprintln(w, rule)
			label := c.SourceFile
			if p := displayPage(c.Page); p != nil {
				label = fmt.Sprintf("%s, page %d", label, *p)
			}
			fmt.Fprintf(w, "[%d] %s\n", i+1, label)
			fmt.Fprintf(w, "%s\n", utils.Truncate(utils.SingleLine(c.Text), excerptLen))
		}
	}
	fmt.Fprintln(w)
	return nil
}

// WriteComparison writes a comparison, or the guidance text when no comparison was made.
func WriteComparison(w io.Writer, cmp *rag.Comparison, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, models.CompareResponse{
			Result:  cmp.Text,
			Sources: models.CitationStrings(cmp.Citations),
		})
	}
	fmt.Fprintf(w, "\n%s\n", cmp.Text)
	if !cmp.Guidance {
		writeSources(w, cmp.Citations)
	}
	fmt.Fprintln(w)
	return nil
}

func writeSources(w io.Writer, citations []models.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, c := range citations {
		fmt.Fprintf(w, "  - %s\n", c.Display)
	}
}

// DocumentSummary is one entry of a document listing.
type DocumentSummary struct {
	Name  string `json:"name"`
	Pages int    `json:"pages"`
}

// WriteDocuments writes the registered documents with their page counts.
func WriteDocuments(w io.Writer, docs []DocumentSummary, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []DocumentSummary{}
		}
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return nil
	}
	width := 0
	for _, d := range docs {
		if n := len([]rune(d.Name)); n > width {
			width = n
		}
	}
	for _, d := range docs {
		pad := strings.Repeat(" ", width-len([]rune(d.Name)))
		fmt.Fprintf(w, "%s%s  %d %s\n", d.Name, pad, d.Pages, plural(d.Pages, "page", "pages"))
	}
	fmt.Fprintf(w, "\n%d %s\n", len(docs), plural(len(docs), "document", "documents"))
	return nil
}

// WriteStatus writes the engine status.
func WriteStatus(w io.Writer, st rag.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, models.StatusResponse{
			State:          st.State.String(),
			Documents:      st.Documents,
			Chunks:         st.Chunks,
			IndexDir:       st.IndexDir,
			DiskUsageBytes: st.DiskUsageBytes,
		})
	}
	fmt.Fprintf(w, "State:      %s\n", st.State)
	fmt.Fprintf(w, "Documents:  %d\n", st.Documents)
	fmt.Fprintf(w, "Chunks:     %d\n", st.Chunks)
	fmt.Fprintf(w, "Index dir:  %s\n", st.IndexDir)
	fmt.Fprintf(w, "Index size: %s\n", FormatBytes(st.DiskUsageBytes))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// displayPage converts a 0-based page index to the 1-based number shown to users.
func displayPage(p *int) *int {
	if p == nil || *p < 0 {
		return nil
	}
	n := *p + 1
	return &n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
