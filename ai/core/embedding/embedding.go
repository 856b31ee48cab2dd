// Package embedding produces the dense and sparse query representations
// used for hybrid people search.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/sashabaranov/go-openai"
)

// ErrUnavailable marks embedding failures: missing configuration or an
// unreachable provider. Fatal for the search path, survivable elsewhere.
var ErrUnavailable = errors.New("embedding unavailable")

// Service generates dense and sparse vectors for query and profile text.
type Service interface {
	// EncodeDense generates a 1024-dim L2-normalized dense vector.
	EncodeDense(ctx context.Context, text string) ([]float32, error)

	// EncodeDenseBatch generates dense vectors for multiple texts.
	EncodeDenseBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EncodeSparse generates a term-weighted sparse vector. Falls back to a
	// lexical TF-IDF scheme when no learned sparse model is reachable.
	EncodeSparse(ctx context.Context, text string) (map[string]float32, error)

	// Dimensions returns the dense vector dimension.
	Dimensions() int
}

// Config represents embedding service configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string // dense model, default BAAI/bge-m3
	SparseModel string // learned sparse model; empty disables the API path
	Dimensions  int    // default 1024
}

type engine struct {
	client     *openai.Client
	model      string
	dimensions int
	sparse     SparseEncoder
}

// NewService creates the embedding engine. The sparse encoder is chosen at
// startup: the learned sparse API when configured, the lexical fallback
// otherwise. The choice is logged once so operators can tell which mode a
// process runs in.
func NewService(ctx context.Context, cfg *Config) (Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: %w: API key not configured", ErrUnavailable)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	model := cfg.Model
	if model == "" {
		model = "BAAI/bge-m3"
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = 1024
	}

	var sparse SparseEncoder
	if cfg.SparseModel != "" {
		api := newAPISparseEncoder(cfg.BaseURL, cfg.APIKey, cfg.SparseModel)
		if err := api.probe(ctx); err != nil {
			slog.Warn("embedding: sparse model unreachable, using lexical fallback",
				"model", cfg.SparseModel, "error", err)
			sparse = newLexicalEncoder()
		} else {
			slog.Info("embedding: learned sparse encoder active", "model", cfg.SparseModel)
			sparse = api
		}
	} else {
		slog.Info("embedding: no sparse model configured, using lexical fallback")
		sparse = newLexicalEncoder()
	}

	return &engine{
		client:     client,
		model:      model,
		dimensions: dimensions,
		sparse:     sparse,
	}, nil
}

func (e *engine) EncodeDense(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EncodeDenseBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *engine) EncodeDenseBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedding: no texts provided")
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: %w: got %d vectors for %d texts", ErrUnavailable, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding: %w: got %d dims, want %d", ErrUnavailable, len(data.Embedding), e.dimensions)
		}
		// Normalize so cosine similarity equals inner product downstream.
		vectors[i] = l2Normalize(data.Embedding)
	}
	return vectors, nil
}

func (e *engine) EncodeSparse(ctx context.Context, text string) (map[string]float32, error) {
	return e.sparse.Encode(ctx, text)
}

func (e *engine) Dimensions() int {
	return e.dimensions
}

// l2Normalize scales a vector to unit Euclidean norm. Zero vectors pass
// through unchanged.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
