// Package vectorindex maintains the semantic index: a pgvector-backed table
// of message chunks with upsert, similarity query, stats and delete support.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"teamchat/internal/chunker"
	"teamchat/internal/observability"
)

// maxUpsertBatch bounds the number of rows written per statement.
const maxUpsertBatch = 100

// Vector is one indexable chunk embedding. The raw content rides along:
// the index is the durable store of text for retrieval display.
type Vector struct {
	ID        string
	MessageID int64
	Content   string
	Embedding []float32
	Metadata  chunker.Metadata
}

// Match is one similarity query result. Score is normalized to 0-1,
// higher is more similar.
type Match struct {
	ID        string
	MessageID int64
	Content   string
	Metadata  chunker.Metadata
	Score     float64
}

// Stats is the observability view of the index.
type Stats struct {
	TotalVectorCount int            `json:"totalVectorCount"`
	Dimension        int            `json:"dimension"`
	Namespaces       map[string]int `json:"namespaces"`
}

// Index is the sqlx-backed vector index client.
type Index struct {
	db        *sqlx.DB
	dimension int
	log       *logrus.Entry

	// write persists one sub-batch; overridable in tests.
	write func(ctx context.Context, vectors []Vector) error
}

// New constructs an Index. dimension is reported by Stats and must match
// the vector column width.
func New(db *sqlx.DB, dimension int) *Index {
	idx := &Index{
		db:        db,
		dimension: dimension,
		log:       logrus.WithField("component", "vectorindex"),
	}
	idx.write = idx.upsertBatch
	return idx
}

// Upsert writes vectors with overwrite semantics keyed by id, in sequential
// sub-batches of at most 100 rows.
func (idx *Index) Upsert(ctx context.Context, vectors []Vector) error {
	for start := 0; start < len(vectors); start += maxUpsertBatch {
		end := start + maxUpsertBatch
		if end > len(vectors) {
			end = len(vectors)
		}
		if err := idx.write(ctx, vectors[start:end]); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
		observability.AddVectorUpserts(end - start)
	}
	return nil
}

func (idx *Index) upsertBatch(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(vectors))
	args := make([]interface{}, 0, len(vectors)*5)
	for i, v := range vectors {
		metadata, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %q: %w", v.ID, err)
		}
		base := i * 5
		placeholders = append(placeholders,
			fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args, v.ID, v.MessageID, v.Content, pgvector.NewVector(v.Embedding), metadata)
	}

	query := `INSERT INTO message_vectors (id, message_id, content, embedding, metadata)
        VALUES ` + strings.Join(placeholders, ", ") + `
        ON CONFLICT (id) DO UPDATE SET
            message_id = EXCLUDED.message_id,
            content = EXCLUDED.content,
            embedding = EXCLUDED.embedding,
            metadata = EXCLUDED.metadata,
            updated_at = NOW()`

	_, err := idx.db.ExecContext(ctx, query, args...)
	return err
}

// Query returns up to topK nearest vectors by cosine similarity, filtered to
// scores at or above minScore and ranked best first.
func (idx *Index) Query(ctx context.Context, embedding []float32, topK int, minScore float64) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	var rows []struct {
		ID        string  `db:"id"`
		MessageID int64   `db:"message_id"`
		Content   string  `db:"content"`
		Metadata  []byte  `db:"metadata"`
		Score     float64 `db:"score"`
	}
	err := idx.db.SelectContext(ctx, &rows,
		`SELECT id, message_id, content, metadata, 1 - (embedding <=> $1) AS score
         FROM message_vectors
         ORDER BY embedding <=> $1
         LIMIT $2`,
		pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	observability.IncVectorQuery()

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		var metadata chunker.Metadata
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			idx.log.WithField("id", row.ID).WithError(err).Warn("skipping vector with bad metadata")
			continue
		}
		matches = append(matches, Match{
			ID:        row.ID,
			MessageID: row.MessageID,
			Content:   row.Content,
			Metadata:  metadata,
			Score:     row.Score,
		})
	}
	return filterByScore(matches, minScore), nil
}

// filterByScore drops matches below the threshold. Raising minScore can only
// shrink the result set.
func filterByScore(matches []Match, minScore float64) []Match {
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= minScore {
			kept = append(kept, m)
		}
	}
	return kept
}

// Stats reports vector count, dimension and the per-source-type breakdown.
func (idx *Index) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Dimension: idx.dimension, Namespaces: map[string]int{}}

	if err := idx.db.GetContext(ctx, &stats.TotalVectorCount,
		`SELECT COUNT(*) FROM message_vectors`); err != nil {
		return Stats{}, fmt.Errorf("count vectors: %w", err)
	}

	var rows []struct {
		Namespace string `db:"namespace"`
		Count     int    `db:"count"`
	}
	err := idx.db.SelectContext(ctx, &rows,
		`SELECT COALESCE(metadata->>'type', 'unknown') AS namespace, COUNT(*) AS count
         FROM message_vectors GROUP BY 1`)
	if err != nil {
		return Stats{}, fmt.Errorf("namespace breakdown: %w", err)
	}
	for _, row := range rows {
		stats.Namespaces[row.Namespace] = row.Count
	}
	return stats, nil
}

// DeleteByMessageID removes every vector derived from a message. Invoked on
// message deletion so the index does not serve stale content.
func (idx *Index) DeleteByMessageID(ctx context.Context, messageID int64) error {
	res, err := idx.db.ExecContext(ctx,
		`DELETE FROM message_vectors WHERE message_id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete vectors for message %d: %w", messageID, err)
	}
	if deleted, err := res.RowsAffected(); err == nil && deleted > 0 {
		idx.log.WithFields(logrus.Fields{"message_id": messageID, "vectors": deleted}).Debug("deleted message vectors")
	}
	return nil
}
