package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SparseEncoder turns text into a term-weighted sparse vector.
type SparseEncoder interface {
	Encode(ctx context.Context, text string) (map[string]float32, error)
}

// apiSparseEncoder calls a learned sparse embedding model (SPLADE-style)
// over a plain JSON endpoint. The OpenAI client has no sparse support, so
// this speaks the provider's embeddings route directly.
type apiSparseEncoder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func newAPISparseEncoder(baseURL, apiKey, model string) *apiSparseEncoder {
	return &apiSparseEncoder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type sparseRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type sparseResponse struct {
	Data []struct {
		SparseEmbedding map[string]float32 `json:"sparse_embedding"`
	} `json:"data"`
}

func (e *apiSparseEncoder) Encode(ctx context.Context, text string) (map[string]float32, error) {
	body, err := json.Marshal(sparseRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal sparse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build sparse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding: %w: sparse endpoint returned %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var decoded sparseResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embedding: decode sparse response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].SparseEmbedding) == 0 {
		return nil, fmt.Errorf("embedding: %w: empty sparse response", ErrUnavailable)
	}
	return decoded.Data[0].SparseEmbedding, nil
}

// probe checks the sparse endpoint once at startup with a short deadline.
func (e *apiSparseEncoder) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.Encode(probeCtx, "ping")
	return err
}
