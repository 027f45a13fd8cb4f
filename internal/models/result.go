package models

// Citation is a human-readable pointer to the document and page a chunk came from.
type Citation struct {
	Display string `json:"display"`
}

// CitationStrings flattens citations to their display strings.
func CitationStrings(cs []Citation) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Display)
	}
	return out
}

// AskResponse is returned for a question.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// CompareResponse is returned for a cross-document comparison.
type CompareResponse struct {
	Result  string   `json:"result"`
	Sources []string `json:"sources"`
}

// DocumentsResponse lists the documents currently registered.
type DocumentsResponse struct {
	Documents []string `json:"documents"`
}

// UploadResponse reports the files that were stored and indexed.
type UploadResponse struct {
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// StatusResponse describes readiness and index size.
type StatusResponse struct {
	State          string `json:"state"`
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	IndexDir       string `json:"index_dir"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
