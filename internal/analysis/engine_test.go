package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/chunker"
	"teamchat/internal/models"
	"teamchat/internal/repositories"
	"teamchat/internal/vectorindex"
)

type stubMessages struct {
	byID      map[int64]models.Message
	preceding []models.Message
	err       error
}

func (s *stubMessages) GetMessage(_ context.Context, id int64) (models.Message, error) {
	if s.err != nil {
		return models.Message{}, s.err
	}
	msg, ok := s.byID[id]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (s *stubMessages) PrecedingMessages(_ context.Context, _ models.Message, limit int) ([]models.Message, error) {
	if len(s.preceding) > limit {
		return s.preceding[:limit], nil
	}
	return s.preceding, nil
}

type stubChannels struct{ member bool }

func (s *stubChannels) IsMember(_ context.Context, _, _ int64) (bool, error) {
	return s.member, nil
}

type stubDMs struct{ participant bool }

func (s *stubDMs) IsParticipant(_ context.Context, _, _ int64) (bool, error) {
	return s.participant, nil
}

type stubUsers struct{}

func (stubUsers) UsernamesByIDs(_ context.Context, ids []int64) (map[int64]string, error) {
	names := map[int64]string{}
	for _, id := range ids {
		names[id] = map[int64]string{1: "alice", 2: "bob"}[id]
	}
	return names, nil
}

type stubCache struct {
	mu      sync.Mutex
	stored  models.Analysis
	getErr  error
	upserts int
}

func (s *stubCache) Get(_ context.Context, _ int64) (models.Analysis, error) {
	if s.getErr != nil {
		return models.Analysis{}, s.getErr
	}
	return s.stored, nil
}

func (s *stubCache) Upsert(_ context.Context, a models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.stored = a
	return nil
}

type stubSearch struct {
	matches []vectorindex.Match
	err     error
}

func (s *stubSearch) Search(_ context.Context, _ string, _ int, _ float64) ([]vectorindex.Match, error) {
	return s.matches, s.err
}

type stubChat struct {
	mu       sync.Mutex
	calls    int
	lastData string
	reply    string
	err      error
	block    chan struct{}
}

func (s *stubChat) Chat(_ context.Context, _, data string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.lastData = data
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testMessage(id int64, channelID int64, senderID int64, content string, at time.Time) models.Message {
	return models.Message{
		ID: id, ChannelID: &channelID, SenderID: senderID,
		Content: content, CreatedAt: at, UpdatedAt: at,
	}
}

func newTestEngine(msgs *stubMessages, cache *stubCache, search *stubSearch, chat *stubChat) *Engine {
	return NewEngine(
		msgs, &stubChannels{member: true}, &stubDMs{participant: true}, stubUsers{},
		cache, search, chat, chunker.NewSplitter(100, 10),
		5, 0.7, time.Hour,
	)
}

func TestCachedFreshnessWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", 10 * time.Minute, true},
		{"almost stale", 59 * time.Minute, true},
		{"exactly at ttl", time.Hour, false},
		{"stale", 2 * time.Hour, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cache := &stubCache{stored: models.Analysis{MessageID: 7, Summary: "old", CreatedAt: now.Add(-tc.age)}}
			engine := newTestEngine(&stubMessages{}, cache, &stubSearch{}, &stubChat{})
			engine.now = func() time.Time { return now }

			got, ok, err := engine.Cached(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			if tc.want {
				assert.Equal(t, "old", got.Summary)
			}
		})
	}
}

func TestCachedMissingEntryIsMiss(t *testing.T) {
	cache := &stubCache{getErr: repositories.ErrAnalysisNotFound}
	engine := newTestEngine(&stubMessages{}, cache, &stubSearch{}, &stubChat{})

	_, ok, err := engine.Cached(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorize(t *testing.T) {
	at := time.Now()
	channelID, dmID := int64(3), int64(9)
	channelMsg := models.Message{ID: 1, ChannelID: &channelID, SenderID: 1, CreatedAt: at}
	dmMsg := models.Message{ID: 2, DMID: &dmID, SenderID: 1, CreatedAt: at}
	msgs := &stubMessages{byID: map[int64]models.Message{1: channelMsg, 2: dmMsg}}

	t.Run("channel member allowed", func(t *testing.T) {
		engine := NewEngine(msgs, &stubChannels{member: true}, &stubDMs{}, stubUsers{},
			&stubCache{}, &stubSearch{}, &stubChat{}, chunker.NewSplitter(100, 10), 5, 0.7, time.Hour)
		assert.NoError(t, engine.Authorize(context.Background(), 1, 42))
	})

	t.Run("non-member rejected", func(t *testing.T) {
		engine := NewEngine(msgs, &stubChannels{member: false}, &stubDMs{}, stubUsers{},
			&stubCache{}, &stubSearch{}, &stubChat{}, chunker.NewSplitter(100, 10), 5, 0.7, time.Hour)
		assert.ErrorIs(t, engine.Authorize(context.Background(), 1, 42), ErrNotAuthorized)
	})

	t.Run("dm outsider rejected", func(t *testing.T) {
		engine := NewEngine(msgs, &stubChannels{}, &stubDMs{participant: false}, stubUsers{},
			&stubCache{}, &stubSearch{}, &stubChat{}, chunker.NewSplitter(100, 10), 5, 0.7, time.Hour)
		assert.ErrorIs(t, engine.Authorize(context.Background(), 2, 42), ErrNotAuthorized)
	})

	t.Run("unknown message surfaces not found", func(t *testing.T) {
		engine := newTestEngine(msgs, &stubCache{}, &stubSearch{}, &stubChat{})
		assert.ErrorIs(t, engine.Authorize(context.Background(), 999, 42), repositories.ErrMessageNotFound)
	})
}

func TestAnalyzePipeline(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	target := testMessage(10, 3, 1, "can we move the deploy to thursday?", at.Add(2*time.Minute))
	msgs := &stubMessages{
		byID: map[int64]models.Message{10: target},
		preceding: []models.Message{
			testMessage(8, 3, 2, "pipeline is green", at),
			testMessage(9, 3, 2, strings.Repeat("release notes draft ", 20), at.Add(time.Minute)),
		},
	}
	search := &stubSearch{matches: []vectorindex.Match{
		{Content: "deploys happen on fridays", Score: 0.82,
			Metadata: chunker.Metadata{Sender: "bob", Conversation: "general", Timestamp: "2026-08-01T10:00:00Z"}},
	}}
	chat := &stubChat{reply: `{"summary":"Asks to reschedule the deploy.","key_points":["deploy timing"],"tone":"collaborative","action_items":["confirm thursday slot"],"patterns":["scheduling discussion"]}`}
	cache := &stubCache{getErr: repositories.ErrAnalysisNotFound}
	engine := newTestEngine(msgs, cache, search, chat)

	var statuses []string
	result, err := engine.Analyze(context.Background(), 10, 42, func(s string) { statuses = append(statuses, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Analyzing message...",
		"Building context window...",
		"Searching for similar messages...",
		"Generating analysis...",
	}, statuses)

	assert.Equal(t, "Asks to reschedule the deploy.", result.Summary)
	assert.Equal(t, "collaborative", result.Tone)
	assert.Equal(t, []string{"confirm thursday slot"}, result.ActionItems)
	assert.EqualValues(t, 42, result.CreatedBy)

	require.Len(t, result.ContextMessages, 3)
	assert.False(t, result.ContextMessages[0].Chunked)
	assert.True(t, result.ContextMessages[1].Chunked, "long message truncated to first chunk")
	assert.LessOrEqual(t, len(result.ContextMessages[1].Content), 100)
	assert.True(t, result.ContextMessages[2].IsTarget)
	assert.Equal(t, "alice", result.ContextMessages[2].Sender)

	require.Len(t, result.SimilarMessages, 1)
	assert.Equal(t, "bob", result.SimilarMessages[0].Sender)
	assert.InDelta(t, 0.82, result.SimilarMessages[0].Score, 1e-9)

	assert.Equal(t, 1, cache.upserts, "result persisted")
	assert.Contains(t, chat.lastData, "<-- message to analyze")
	assert.Contains(t, chat.lastData, "deploys happen on fridays")
}

func TestAnalyzeSearchFailureAborts(t *testing.T) {
	at := time.Now()
	msgs := &stubMessages{byID: map[int64]models.Message{10: testMessage(10, 3, 1, "hi", at)}}
	chat := &stubChat{reply: "{}"}
	engine := newTestEngine(msgs, &stubCache{}, &stubSearch{err: errors.New("index down")}, chat)

	_, err := engine.Analyze(context.Background(), 10, 42, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index down")
	assert.Zero(t, chat.calls, "no generation after failed search")
}

func TestAnalyzeConcurrentRequestsShareOneComputation(t *testing.T) {
	at := time.Now()
	msgs := &stubMessages{byID: map[int64]models.Message{10: testMessage(10, 3, 1, "hi", at)}}
	chat := &stubChat{reply: `{"summary":"greeting","tone":"friendly"}`, block: make(chan struct{})}
	cache := &stubCache{getErr: repositories.ErrAnalysisNotFound}
	engine := newTestEngine(msgs, cache, &stubSearch{}, chat)

	const callers = 4
	results := make([]models.Analysis, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Analyze(context.Background(), 10, int64(i), nil)
		}(i)
	}

	// Let every caller reach the in-flight computation before it finishes.
	require.Eventually(t, func() bool {
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return chat.calls >= 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(chat.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "greeting", results[i].Summary)
	}
	assert.Equal(t, 1, chat.calls, "one generation shared by all callers")
	assert.Equal(t, 1, cache.upserts)
}

func TestDecodeGeneratedToleratesFences(t *testing.T) {
	fenced := "```json\n{\"summary\":\"s\",\"tone\":\"neutral\"}\n```"
	result := decodeGenerated(fenced)
	assert.Equal(t, "s", result.Summary)
	assert.Equal(t, "neutral", result.Tone)
}

func TestDecodeGeneratedFallsBackToRawText(t *testing.T) {
	result := decodeGenerated("The message is a casual greeting.")
	assert.Equal(t, "The message is a casual greeting.", result.Summary)
	assert.Equal(t, "unknown", result.Tone)
}
