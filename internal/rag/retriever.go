// Package rag answers free-text questions grounded in retrieved chat history.
package rag

import (
	"context"
	"fmt"

	"teamchat/internal/vectorindex"
)

// Embedder turns texts into vectors. Satisfied by embeddings.Generator.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher runs similarity queries. Satisfied by vectorindex.Index.
type Searcher interface {
	Query(ctx context.Context, embedding []float32, topK int, minScore float64) ([]vectorindex.Match, error)
}

// Retriever performs the embed-then-search half of the pipeline. It is
// shared between question answering and message analysis.
type Retriever struct {
	embedder Embedder
	index    Searcher
}

// NewRetriever constructs a Retriever.
func NewRetriever(embedder Embedder, index Searcher) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Search embeds the text and returns the nearest indexed chunks at or above
// minScore, best first.
func (r *Retriever) Search(ctx context.Context, text string, topK int, minScore float64) ([]vectorindex.Match, error) {
	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one query vector, got %d", len(vectors))
	}

	matches, err := r.index.Query(ctx, vectors[0], topK, minScore)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return matches, nil
}
