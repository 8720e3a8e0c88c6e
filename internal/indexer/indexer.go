// Package indexer rebuilds the semantic index from message history. It
// pages through messages, chunks and embeds them, and upserts the vectors.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"teamchat/internal/chunker"
	"teamchat/internal/models"
	"teamchat/internal/vectorindex"
)

// Mode selects how much history a run visits.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// ErrSinceRequired rejects incremental runs without a cutoff.
var ErrSinceRequired = errors.New("incremental mode requires a since timestamp")

// MessageSource pages indexable messages. Satisfied by the message
// repository.
type MessageSource interface {
	ListForIndex(ctx context.Context, since *time.Time, offset int, limit int) ([]models.IndexableMessage, error)
	CountForIndex(ctx context.Context, since *time.Time) (int, error)
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Upserter writes vectors to the index.
type Upserter interface {
	Upsert(ctx context.Context, vectors []vectorindex.Vector) error
}

// Options configures one indexing run.
type Options struct {
	Mode      string
	Since     *time.Time
	BatchSize int
	DryRun    bool
}

// Report summarizes what a run did.
type Report struct {
	MessagesScanned int
	MessagesSkipped int
	ChunksBuilt     int
	VectorsUpserted int
	Elapsed         time.Duration
}

// Indexer drives the chunk-embed-upsert pipeline.
type Indexer struct {
	messages MessageSource
	splitter *chunker.Splitter
	embedder Embedder
	index    Upserter
	log      *logrus.Entry
}

// New constructs an Indexer.
func New(messages MessageSource, splitter *chunker.Splitter, embedder Embedder, index Upserter) *Indexer {
	return &Indexer{
		messages: messages,
		splitter: splitter,
		embedder: embedder,
		index:    index,
		log:      logrus.WithField("component", "indexer"),
	}
}

// Run executes one indexing pass. The first failed page aborts the run:
// a partially indexed history is safe because chunk ids are deterministic
// and the next run overwrites them.
func (ix *Indexer) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Mode == ModeIncremental && opts.Since == nil {
		return Report{}, ErrSinceRequired
	}
	since := opts.Since
	if opts.Mode == ModeFull {
		since = nil
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	started := time.Now()
	report := Report{}

	total, err := ix.messages.CountForIndex(ctx, since)
	if err != nil {
		return report, fmt.Errorf("count messages: %w", err)
	}
	ix.log.WithFields(logrus.Fields{"total": total, "mode": opts.Mode, "dry_run": opts.DryRun}).Info("indexing run started")

	for offset := 0; ; offset += batchSize {
		page, err := ix.messages.ListForIndex(ctx, since, offset, batchSize)
		if err != nil {
			return report, fmt.Errorf("list messages at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		if err := ix.indexPage(ctx, page, opts.DryRun, &report); err != nil {
			return report, err
		}
		ix.log.WithFields(logrus.Fields{
			"scanned":  report.MessagesScanned,
			"total":    total,
			"upserted": report.VectorsUpserted,
		}).Info("indexing progress")
	}

	report.Elapsed = time.Since(started)
	ix.log.WithFields(logrus.Fields{
		"scanned":  report.MessagesScanned,
		"skipped":  report.MessagesSkipped,
		"chunks":   report.ChunksBuilt,
		"upserted": report.VectorsUpserted,
		"elapsed":  report.Elapsed.String(),
	}).Info("indexing run finished")
	return report, nil
}

func (ix *Indexer) indexPage(ctx context.Context, page []models.IndexableMessage, dryRun bool, report *Report) error {
	var chunks []chunker.Chunk
	var owners []int64

	for _, msg := range page {
		report.MessagesScanned++
		if msg.Content == "" {
			report.MessagesSkipped++
			continue
		}

		meta := chunker.Metadata{
			Sender:       msg.SenderName,
			Conversation: msg.ConversationName,
			Timestamp:    msg.CreatedAt.UTC().Format(time.RFC3339),
			Type:         msg.SourceType,
		}
		for _, chunk := range ix.splitter.Split(strconv.FormatInt(msg.ID, 10), msg.Content, meta) {
			chunks = append(chunks, chunk)
			owners = append(owners, msg.ID)
		}
	}
	report.ChunksBuilt += len(chunks)
	if len(chunks) == 0 || dryRun {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	vectors := make([]vectorindex.Vector, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = vectorindex.Vector{
			ID:        chunk.ID,
			MessageID: owners[i],
			Content:   chunk.Content,
			Embedding: embeddings[i],
			Metadata:  chunk.Metadata,
		}
	}
	if err := ix.index.Upsert(ctx, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	report.VectorsUpserted += len(vectors)
	return nil
}
