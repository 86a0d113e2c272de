package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/arturoeanton/go-star-search/internal/port"
	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // empty = api.openai.com
	Model     string // defaults to text-embedding-3-large
	Dimension int
}

// OpenAIProvider implements port.EmbeddingProvider on the OpenAI embeddings API.
type OpenAIProvider struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIProvider creates an embedding provider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.LargeEmbedding3
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		dimension: cfg.Dimension,
	}
}

// ModelName returns the embedding model identifier.
func (p *OpenAIProvider) ModelName() string {
	return string(p.model)
}

// Dimension returns the configured vector length.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// EmbedOne generates a vector embedding for the given text.
func (p *OpenAIProvider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.create(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.create(ctx, texts)
}

func (p *OpenAIProvider) create(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// The API tags each embedding with its input index; don't rely on order.
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		vectors[i] = v
	}
	if err := checkDimension("openai", p.dimension, vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := string(reqErr.Body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return classifyStatus("openai", reqErr.HTTPStatusCode, msg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai: %w", err)
	}
	return fmt.Errorf("openai: %w: %v", port.ErrRateOrNetwork, err)
}

var _ port.EmbeddingProvider = (*OpenAIProvider)(nil)
