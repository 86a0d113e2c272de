package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arturoeanton/go-star-search/internal/port"
)

// OllamaConfig holds the configuration for an Ollama embed endpoint.
type OllamaConfig struct {
	BaseURL   string // e.g. http://localhost:11434 or https://ollama.com
	Model     string // e.g. bge-m3
	Token     string // Bearer token for Ollama Cloud (empty = no auth)
	Dimension int
}

// OllamaProvider implements port.EmbeddingProvider using the Ollama REST API.
type OllamaProvider struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

// NewOllamaProvider creates a new Ollama-backed embedding provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OllamaProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// ModelName returns the embedding model identifier.
func (o *OllamaProvider) ModelName() string {
	return o.cfg.Model
}

// Dimension returns the configured vector length.
func (o *OllamaProvider) Dimension() int {
	return o.cfg.Dimension
}

// EmbedOne generates a vector embedding for the given text.
func (o *OllamaProvider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := o.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed batch: got %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (o *OllamaProvider) embed(ctx context.Context, input any) ([][]float32, error) {
	payload := map[string]any{
		"model":    o.cfg.Model,
		"input":    input,
		"truncate": false,
	}

	body, err := o.post(ctx, "/api/embed", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := checkDimension("ollama", o.cfg.Dimension, resp.Embeddings); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// post is a helper for POST requests to the Ollama endpoint (with optional bearer token).
func (o *OllamaProvider) post(ctx context.Context, path string, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrRateOrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := string(body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, classifyStatus("ollama", resp.StatusCode, msg)
	}

	return io.ReadAll(resp.Body)
}

var _ port.EmbeddingProvider = (*OllamaProvider)(nil)
