package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func newServer(t *testing.T, status int, body any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_Embed(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantLen int
		wantErr error
	}{
		{
			name:    "openai shape",
			status:  http.StatusOK,
			body:    map[string]any{"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}}},
			wantLen: 3,
		},
		{
			name:    "wrong dimension rejected",
			status:  http.StatusOK,
			body:    map[string]any{"data": []map[string]any{{"embedding": []float64{1, 0}}}},
			wantErr: domain.ErrDimensionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			c, err := NewClient(Config{BaseURL: srv.URL, Model: "nomic-embed-text", Dimension: 3})
			require.NoError(t, err)
			assert.Equal(t, "openai:nomic-embed-text", c.Name())

			v, err := c.Embed(context.Background(), "hello")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, v, tt.wantLen)
			assert.InDelta(t, 0.2, v[1], 1e-6)
		})
	}
}

func TestClient_NoRetryOnServerError(t *testing.T) {
	srv, calls := newServer(t, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	c, err := NewClient(Config{BaseURL: srv.URL, Dimension: 3})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost", Dimension: 0})
	assert.Error(t, err)

	t.Setenv("RAGCHAT_TEST_EMPTY_KEY", "")
	_, err = NewClient(Config{APIKeyEnv: "RAGCHAT_TEST_EMPTY_KEY", Dimension: 8})
	assert.Error(t, err, "hosted API requires a key")

	_, err = NewClient(Config{Provider: "cohere", Dimension: 8})
	assert.Error(t, err)
}

func TestNewClient_Providers(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "sk-test")
	tests := []struct {
		name     string
		cfg      Config
		wantName string
	}{
		{
			name:     "openai default model",
			cfg:      Config{APIKeyEnv: "RAGCHAT_TEST_KEY", Dimension: 1536},
			wantName: "openai:text-embedding-3-small",
		},
		{
			name:     "ollama default model",
			cfg:      Config{Provider: ProviderOllama, BaseURL: "http://localhost:11434", Dimension: 768},
			wantName: "ollama:nomic-embed-text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, c.Name())
			assert.Equal(t, tt.cfg.Dimension, c.Dimension())
		})
	}
}
