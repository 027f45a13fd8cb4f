package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxUploadBytes
	if limit <= 0 {
		limit = config.DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", limit))
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	uploads := make([]rag.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.logger.Warn("upload: open part failed", zap.String("name", fh.Filename), zap.Error(err))
			continue
		}
		defer func(f multipart.File) { _ = f.Close() }(f)
		uploads = append(uploads, rag.Upload{Name: fh.Filename, Content: f})
	}

	s.logger.Debug("upload request", zap.Int("files", len(uploads)))
	saved, err := s.svc.UploadAndReindex(r.Context(), uploads)
	switch {
	case errors.Is(err, rag.ErrNoValidUploads):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("upload: reindex failed", zap.Strings("saved", saved), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.UploadResponse{
		Message: fmt.Sprintf("%d file(s) uploaded and indexed", len(saved)),
		Files:   saved,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	s.respondJSON(w, http.StatusOK, models.DocumentsResponse{Documents: names})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question))
	ans, err := s.svc.AskQuestion(r.Context(), req.Question)
	if err != nil {
		status := queryErrorStatus(err)
		s.logger.Error("ask failed", zap.Int("status", status), zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.AskResponse{
		Answer:  ans.Text,
		Sources: models.CitationStrings(ans.Citations),
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.svc.CompareDocuments(r.Context())
	if err != nil {
		status := queryErrorStatus(err)
		s.logger.Error("compare failed", zap.Int("status", status), zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.CompareResponse{
		Result:  cmp.Text,
		Sources: models.CitationStrings(cmp.Citations),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status()
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.StatusResponse{
		State:          st.State.String(),
		Documents:      st.Documents,
		Chunks:         st.Chunks,
		IndexDir:       st.IndexDir,
		DiskUsageBytes: st.DiskUsageBytes,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryErrorStatus maps a failed ask or compare to a status code. Model and retrieval
// failures are server errors; failures to become ready are bad requests.
func queryErrorStatus(err error) int {
	switch rag.KindOf(err) {
	case rag.KindGeneration, rag.KindRetrieval:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Error: message})
}
