package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/chunker"
	"teamchat/internal/models"
	"teamchat/internal/vectorindex"
)

type fakeSource struct {
	messages  []models.IndexableMessage
	lastSince *time.Time
}

func (f *fakeSource) ListForIndex(_ context.Context, since *time.Time, offset int, limit int) ([]models.IndexableMessage, error) {
	f.lastSince = since
	if offset >= len(f.messages) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.messages) {
		end = len(f.messages)
	}
	return f.messages[offset:end], nil
}

func (f *fakeSource) CountForIndex(_ context.Context, _ *time.Time) (int, error) {
	return len(f.messages), nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1}
	}
	return out, nil
}

type fakeUpserter struct {
	vectors []vectorindex.Vector
	err     error
}

func (f *fakeUpserter) Upsert(_ context.Context, vectors []vectorindex.Vector) error {
	if f.err != nil {
		return f.err
	}
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func indexable(id int64, content string, at time.Time) models.IndexableMessage {
	return models.IndexableMessage{
		Message:          models.Message{ID: id, SenderID: 1, Content: content, CreatedAt: at},
		SenderName:       "alice",
		ConversationName: "general",
		SourceType:       "channel_message",
	}
}

func TestRunIndexesAllMessages(t *testing.T) {
	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{messages: []models.IndexableMessage{
		indexable(1, "short note", at),
		indexable(2, strings.Repeat("standup summary ", 40), at.Add(time.Minute)),
		indexable(3, "", at.Add(2*time.Minute)),
	}}
	upserter := &fakeUpserter{}
	ix := New(source, chunker.NewSplitter(100, 10), &fakeEmbedder{}, upserter)

	report, err := ix.Run(context.Background(), Options{Mode: ModeFull, BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, report.MessagesScanned)
	assert.Equal(t, 1, report.MessagesSkipped, "empty content is skipped")
	assert.Equal(t, report.ChunksBuilt, report.VectorsUpserted)
	assert.Greater(t, report.ChunksBuilt, 2, "long message produced multiple chunks")

	require.NotEmpty(t, upserter.vectors)
	first := upserter.vectors[0]
	assert.Equal(t, "1", first.ID)
	assert.EqualValues(t, 1, first.MessageID)
	assert.Equal(t, "alice", first.Metadata.Sender)
	assert.Equal(t, "general", first.Metadata.Conversation)
	assert.Equal(t, "2026-08-30T10:00:00Z", first.Metadata.Timestamp)
	assert.Equal(t, "channel_message", first.Metadata.Type)
	assert.Nil(t, source.lastSince, "full mode ignores since")
}

func TestRunIncrementalRequiresSince(t *testing.T) {
	ix := New(&fakeSource{}, chunker.NewSplitter(100, 10), &fakeEmbedder{}, &fakeUpserter{})

	_, err := ix.Run(context.Background(), Options{Mode: ModeIncremental})
	require.ErrorIs(t, err, ErrSinceRequired)
}

func TestRunIncrementalPassesCutoff(t *testing.T) {
	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{messages: []models.IndexableMessage{indexable(1, "hello", at)}}
	ix := New(source, chunker.NewSplitter(100, 10), &fakeEmbedder{}, &fakeUpserter{})

	since := at.Add(-time.Hour)
	_, err := ix.Run(context.Background(), Options{Mode: ModeIncremental, Since: &since})
	require.NoError(t, err)
	require.NotNil(t, source.lastSince)
	assert.True(t, source.lastSince.Equal(since))
}

func TestRunDryRunWritesNothing(t *testing.T) {
	at := time.Now()
	source := &fakeSource{messages: []models.IndexableMessage{indexable(1, "hello", at)}}
	embedder := &fakeEmbedder{}
	upserter := &fakeUpserter{}
	ix := New(source, chunker.NewSplitter(100, 10), embedder, upserter)

	report, err := ix.Run(context.Background(), Options{Mode: ModeFull, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksBuilt)
	assert.Zero(t, report.VectorsUpserted)
	assert.Zero(t, embedder.calls, "dry run skips embedding")
	assert.Empty(t, upserter.vectors)
}

func TestRunAbortsOnEmbedFailure(t *testing.T) {
	at := time.Now()
	source := &fakeSource{messages: []models.IndexableMessage{
		indexable(1, "hello", at),
		indexable(2, "world", at),
	}}
	upserter := &fakeUpserter{}
	ix := New(source, chunker.NewSplitter(100, 10), &fakeEmbedder{err: errors.New("quota exceeded")}, upserter)

	report, err := ix.Run(context.Background(), Options{Mode: ModeFull, BatchSize: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, upserter.vectors)
	assert.Equal(t, 1, report.MessagesScanned, "run stops at the first failed page")
}
