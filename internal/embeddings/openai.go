package embeddings

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"teamchat/internal/config"
)

// OpenAIClient implements Client against the OpenAI embeddings API.
type OpenAIClient struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAIClient builds an embeddings client from provider config. The
// requested dimensions must match the vector index width.
func NewOpenAIClient(cfg config.OpenAI) *OpenAIClient {
	options := []option.RequestOption{}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey == "" {
		logrus.Info("OPENAI_API_KEY is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(cfg.APIKey))
	}

	return &OpenAIClient{
		client:     openai.NewClient(options...),
		model:      cfg.EmbeddingModel,
		dimensions: cfg.Dimensions,
	}
}

// CreateEmbeddings embeds one sub-batch of texts in a single provider call.
func (c *OpenAIClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(vectors) {
			return nil, fmt.Errorf("provider returned out-of-range embedding index %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}
