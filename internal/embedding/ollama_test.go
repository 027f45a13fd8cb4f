package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaStub(t *testing.T, dims int, requests *[]ollamaEmbedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		*requests = append(*requests, req)
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			vec := make([]float64, dims)
			vec[i%dims] = 1
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	var requests []ollamaEmbedRequest
	srv := newOllamaStub(t, 3, &requests)
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/", Model: "test-embed", BatchSize: 2})
	assert.Equal(t, 0, e.Dimensions())

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Len(t, requests, 2, "three inputs with batch size two take two requests")
	assert.Equal(t, "test-embed", requests[0].Model)
	assert.Equal(t, []string{"a", "b"}, requests[0].Input)
	assert.Equal(t, []string{"c"}, requests[1].Input)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, "test-embed", e.ModelName())
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	var requests []ollamaEmbedRequest
	srv := newOllamaStub(t, 3, &requests)
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Dimensions: 5})
	_, err := e.Embed(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestOllamaEmbedder_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status 404"), err.Error())
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaEmbedder_ShortResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "a")
	require.Error(t, err)
}
