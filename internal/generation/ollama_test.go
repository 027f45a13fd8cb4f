package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerator_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "forty-two", Done: true})
	}))
	defer srv.Close()

	g := NewOllamaGenerator(OllamaConfig{BaseURL: srv.URL, Model: "m", Temperature: 0.3})
	out, err := g.Generate(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "forty-two", out)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, "what is the answer?", got.Prompt)
	assert.False(t, got.Stream)
	assert.InDelta(t, 0.3, got.Options.Temperature, 1e-9)
}

func TestOllamaGenerator_Defaults(t *testing.T) {
	g := NewOllamaGenerator(OllamaConfig{Temperature: -1})
	assert.Equal(t, DefaultModel, g.ModelName())
	assert.InDelta(t, DefaultTemperature, g.temperature, 1e-9)
	assert.Equal(t, DefaultBaseURL, g.baseURL)
}

func TestOllamaGenerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), "status 500") },
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), "decode response") },
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"model is loading"}`))
			},
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), "model is loading") },
		},
		{
			name: "empty response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"response":"  ","done":true}`))
			},
			check: func(t *testing.T, err error) { assert.True(t, errors.Is(err, ErrEmptyResponse)) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewOllamaGenerator(OllamaConfig{BaseURL: srv.URL}).Generate(context.Background(), "p")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestOllamaGenerator_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOllamaGenerator(OllamaConfig{BaseURL: srv.URL}).Generate(ctx, "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err.Error())
}
