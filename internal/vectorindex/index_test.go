package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterByScoreMonotonic(t *testing.T) {
	matches := []Match{
		{ID: "a", Score: 0.95},
		{ID: "b", Score: 0.80},
		{ID: "c", Score: 0.71},
		{ID: "d", Score: 0.40},
	}

	prev := len(matches) + 1
	for _, minScore := range []float64{0, 0.5, 0.7, 0.75, 0.9, 0.99} {
		kept := filterByScore(append([]Match(nil), matches...), minScore)
		assert.LessOrEqual(t, len(kept), prev,
			"raising minScore to %v increased the result count", minScore)
		prev = len(kept)
		for _, m := range kept {
			assert.GreaterOrEqual(t, m.Score, minScore)
		}
	}
}

func TestFilterByScoreKeepsRankingOrder(t *testing.T) {
	matches := []Match{
		{ID: "best", Score: 0.9},
		{ID: "mid", Score: 0.8},
		{ID: "worst", Score: 0.75},
	}

	kept := filterByScore(matches, 0.78)
	assert.Equal(t, []string{"best", "mid"}, []string{kept[0].ID, kept[1].ID})
}

func TestUpsertSplitsIntoSequentialSubBatches(t *testing.T) {
	idx := New(nil, 4)
	var batches [][]Vector
	idx.write = func(_ context.Context, vectors []Vector) error {
		batches = append(batches, append([]Vector(nil), vectors...))
		return nil
	}

	vectors := make([]Vector, 250)
	for i := range vectors {
		vectors[i] = Vector{ID: fmt.Sprintf("7_chunk_%d", i), MessageID: 7}
	}

	require.NoError(t, idx.Upsert(context.Background(), vectors))
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 100)
	assert.Len(t, batches[2], 50)
	assert.Equal(t, "7_chunk_0", batches[0][0].ID)
	assert.Equal(t, "7_chunk_100", batches[1][0].ID)
	assert.Equal(t, "7_chunk_249", batches[2][49].ID, "input order preserved across sub-batches")
}

func TestUpsertStopsAtFirstFailedSubBatch(t *testing.T) {
	idx := New(nil, 4)
	calls := 0
	idx.write = func(_ context.Context, _ []Vector) error {
		calls++
		if calls == 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	vectors := make([]Vector, 250)
	for i := range vectors {
		vectors[i] = Vector{ID: fmt.Sprintf("7_chunk_%d", i), MessageID: 7}
	}

	err := idx.Upsert(context.Background(), vectors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100-200")
	assert.Equal(t, 2, calls, "no writes after the failing sub-batch")
}

func TestUpsertEmptyInputWritesNothing(t *testing.T) {
	idx := New(nil, 4)
	calls := 0
	idx.write = func(_ context.Context, _ []Vector) error {
		calls++
		return nil
	}

	require.NoError(t, idx.Upsert(context.Background(), nil))
	assert.Zero(t, calls)
}
