// Package embeddings turns text into fixed-length vectors, batched to stay
// under provider rate limits.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"teamchat/internal/observability"
)

// Client is the provider seam: one call embeds up to a sub-batch of texts.
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator batches embedding requests. Sub-batches are issued strictly
// sequentially with a fixed cool-down between consecutive calls, bounding
// outstanding provider requests to one.
type Generator struct {
	client    Client
	batchSize int
	cooldown  time.Duration
	log       *logrus.Entry
}

// NewGenerator constructs a Generator. batchSize is clamped to the provider
// rate-limit ceiling of 20 inputs per call.
func NewGenerator(client Client, batchSize int, cooldown time.Duration) *Generator {
	if batchSize <= 0 || batchSize > 20 {
		batchSize = 20
	}
	return &Generator{
		client:    client,
		batchSize: batchSize,
		cooldown:  cooldown,
		log:       logrus.WithField("component", "embeddings"),
	}
}

// Embed returns one vector per input text, preserving order. Failure of any
// sub-batch fails the whole call; there is no partial recovery or retry here,
// that decision belongs to the caller.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if start > 0 && g.cooldown > 0 {
			select {
			case <-time.After(g.cooldown):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		batch := texts[start:end]
		result, err := g.client.CreateEmbeddings(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(result) != len(batch) {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors for %d inputs", start, end, len(result), len(batch))
		}
		observability.IncEmbeddingBatch()
		g.log.WithFields(logrus.Fields{"from": start, "to": end}).Debug("embedded batch")
		vectors = append(vectors, result...)
	}
	return vectors, nil
}
