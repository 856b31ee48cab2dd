package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPISparseEncoder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req sparseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "splade-v3", req.Model)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"sparse_embedding": map[string]float32{"golang": 0.9, "engineer": 0.7}},
			},
		})
	}))
	defer server.Close()

	enc := newAPISparseEncoder(server.URL, "test-key", "splade-v3")
	vec, err := enc.Encode(context.Background(), "golang engineer")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, float64(vec["golang"]), 1e-6)
	assert.InDelta(t, 0.7, float64(vec["engineer"]), 1e-6)
}

func TestAPISparseEncoderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	enc := newAPISparseEncoder(server.URL, "test-key", "splade-v3")
	_, err := enc.Encode(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAPISparseEncoderEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	enc := newAPISparseEncoder(server.URL, "test-key", "splade-v3")
	_, err := enc.Encode(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
