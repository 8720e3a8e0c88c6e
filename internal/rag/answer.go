package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"teamchat/internal/vectorindex"
)

// ErrEmptyQuery rejects blank questions before any provider call is made.
var ErrEmptyQuery = errors.New("query must not be empty")

const answerInstructions = `You are a helpful assistant for a team chat workspace.
Ground your answer strictly in the provided chat context. If the context is
insufficient to answer the question, say so instead of guessing.`

// Chatter issues one completion call. Satisfied by llm.Client.
type Chatter interface {
	Chat(ctx context.Context, instructions, data string) (string, error)
}

// ContextMetadata annotates a supporting chunk for provenance display.
type ContextMetadata struct {
	Score     float64 `json:"score"`
	Sender    string  `json:"sender"`
	Channel   string  `json:"channel"`
	CreatedAt string  `json:"created_at"`
	Type      string  `json:"type"`
}

// ContextChunk is one retrieved chunk returned alongside the answer.
type ContextChunk struct {
	Content  string          `json:"content"`
	Metadata ContextMetadata `json:"metadata"`
}

// Answer is the grounded response plus its supporting context.
type Answer struct {
	Answer  string         `json:"answer"`
	Context []ContextChunk `json:"context"`
}

// Engine is the retrieval-augmented answering engine.
type Engine struct {
	retriever *Retriever
	llm       Chatter
	topK      int
	minScore  float64
	log       *logrus.Entry
}

// NewEngine constructs an Engine with the given retrieval defaults.
func NewEngine(retriever *Retriever, llm Chatter, topK int, minScore float64) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		retriever: retriever,
		llm:       llm,
		topK:      topK,
		minScore:  minScore,
		log:       logrus.WithField("component", "rag"),
	}
}

// Ask answers a question grounded in retrieved chat history. Retrieval or
// generation failure surfaces as a single error; there is no fallback path.
func (e *Engine) Ask(ctx context.Context, query string) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, ErrEmptyQuery
	}

	matches, err := e.retriever.Search(ctx, query, e.topK, e.minScore)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	text, err := e.llm.Chat(ctx, answerInstructions, buildPrompt(matches, query))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	e.log.WithFields(logrus.Fields{"context_chunks": len(matches)}).Debug("answered question")
	return Answer{Answer: text, Context: toContextChunks(matches)}, nil
}

func buildPrompt(matches []vectorindex.Match, query string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(matches) == 0 {
		b.WriteString("(no relevant chat history found)\n")
	}
	for _, m := range matches {
		sender := m.Metadata.Sender
		if sender == "" {
			sender = "unknown"
		}
		fmt.Fprintf(&b, "[%s]: %s\n", sender, m.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

func toContextChunks(matches []vectorindex.Match) []ContextChunk {
	chunks := make([]ContextChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, ContextChunk{
			Content: m.Content,
			Metadata: ContextMetadata{
				Score:     m.Score,
				Sender:    m.Metadata.Sender,
				Channel:   m.Metadata.Conversation,
				CreatedAt: m.Metadata.Timestamp,
				Type:      m.Metadata.Type,
			},
		})
	}
	return chunks
}
