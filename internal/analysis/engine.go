// Package analysis produces structured per-message analyses: a context
// window of surrounding messages, semantically similar history, and
// LLM-generated summary fields, cached per message id.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"teamchat/internal/models"
	"teamchat/internal/observability"
	"teamchat/internal/repositories"
	"teamchat/internal/vectorindex"
)

// ErrNotAuthorized means the requester is not a member of the message's
// conversation. Checked before any provider call; fails closed.
var ErrNotAuthorized = errors.New("not authorized to view this message")

const contextWindowSize = 5

const analysisInstructions = `You analyze a single chat message in the context of its conversation.
Respond with a JSON object and nothing else, using exactly these keys:
{"summary": string, "key_points": [string], "tone": string, "action_items": [string], "patterns": [string]}
Base the analysis only on the provided messages.`

// MessageStore is the slice of the message repository the engine reads.
type MessageStore interface {
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	PrecedingMessages(ctx context.Context, msg models.Message, limit int) ([]models.Message, error)
}

// ChannelMemberships gates channel messages.
type ChannelMemberships interface {
	IsMember(ctx context.Context, channelID int64, userID int64) (bool, error)
}

// DMMemberships gates direct-message threads.
type DMMemberships interface {
	IsParticipant(ctx context.Context, dmID int64, userID int64) (bool, error)
}

// UserDirectory resolves display names for the context window.
type UserDirectory interface {
	UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Cache stores finished analyses keyed by message id.
type Cache interface {
	Get(ctx context.Context, messageID int64) (models.Analysis, error)
	Upsert(ctx context.Context, analysis models.Analysis) error
}

// SimilaritySearcher finds related historical messages. Satisfied by
// rag.Retriever.
type SimilaritySearcher interface {
	Search(ctx context.Context, text string, topK int, minScore float64) ([]vectorindex.Match, error)
}

// Chatter issues one completion call. Satisfied by llm.Client.
type Chatter interface {
	Chat(ctx context.Context, instructions, data string) (string, error)
}

// Splitter truncates oversized context messages to their first chunk.
type Splitter interface {
	FirstChunk(content string) (string, bool)
}

// Engine runs the analysis pipeline. Concurrent requests for the same
// uncached message share one computation through the singleflight group.
type Engine struct {
	messages MessageStore
	channels ChannelMemberships
	dms      DMMemberships
	users    UserDirectory
	cache    Cache
	search   SimilaritySearcher
	llm      Chatter
	splitter Splitter

	topK     int
	minScore float64
	ttl      time.Duration

	group singleflight.Group
	now   func() time.Time
	log   *logrus.Entry
}

// NewEngine wires the analysis pipeline.
func NewEngine(
	messages MessageStore,
	channels ChannelMemberships,
	dms DMMemberships,
	users UserDirectory,
	cache Cache,
	search SimilaritySearcher,
	llm Chatter,
	splitter Splitter,
	topK int,
	minScore float64,
	ttl time.Duration,
) *Engine {
	if topK <= 0 {
		topK = 5
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Engine{
		messages: messages,
		channels: channels,
		dms:      dms,
		users:    users,
		cache:    cache,
		search:   search,
		llm:      llm,
		splitter: splitter,
		topK:     topK,
		minScore: minScore,
		ttl:      ttl,
		now:      time.Now,
		log:      logrus.WithField("component", "analysis"),
	}
}

// Cached returns a previously stored analysis if it is younger than the
// freshness window. A stale or missing entry is a miss, not an error.
func (e *Engine) Cached(ctx context.Context, messageID int64) (models.Analysis, bool, error) {
	stored, err := e.cache.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrAnalysisNotFound) {
		observability.IncAnalysisCache("miss")
		return models.Analysis{}, false, nil
	}
	if err != nil {
		return models.Analysis{}, false, fmt.Errorf("look up cached analysis: %w", err)
	}
	if e.now().Sub(stored.CreatedAt) >= e.ttl {
		observability.IncAnalysisCache("stale")
		return models.Analysis{}, false, nil
	}
	observability.IncAnalysisCache("hit")
	return stored, true, nil
}

// Authorize verifies the requester may view the message: channel membership
// for channel messages, thread participation for DMs. Must be called before
// Analyze; it is the only step that runs before streaming starts.
func (e *Engine) Authorize(ctx context.Context, messageID int64, userID int64) error {
	msg, err := e.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	switch {
	case msg.ChannelID != nil:
		member, err := e.channels.IsMember(ctx, *msg.ChannelID, userID)
		if err != nil {
			return fmt.Errorf("verify channel membership: %w", err)
		}
		if !member {
			return ErrNotAuthorized
		}
	case msg.DMID != nil:
		participant, err := e.dms.IsParticipant(ctx, *msg.DMID, userID)
		if err != nil {
			return fmt.Errorf("verify dm participation: %w", err)
		}
		if !participant {
			return ErrNotAuthorized
		}
	default:
		return errors.New("message has no conversation container")
	}
	return nil
}

// Analyze runs the live pipeline and persists the result. onStatus receives
// human-readable progress lines; only the call that actually executes the
// computation sees them, callers that join an in-flight computation get just
// the shared result.
func (e *Engine) Analyze(ctx context.Context, messageID int64, userID int64, onStatus func(string)) (models.Analysis, error) {
	if onStatus == nil {
		onStatus = func(string) {}
	}

	key := strconv.FormatInt(messageID, 10)
	result, err, shared := e.group.Do(key, func() (interface{}, error) {
		// The computation outlives the initiating request so that joined
		// callers are not cancelled along with it.
		return e.compute(context.WithoutCancel(ctx), messageID, userID, onStatus)
	})
	if err != nil {
		return models.Analysis{}, err
	}
	if shared {
		e.log.WithField("message_id", messageID).Debug("joined in-flight analysis")
	}
	return result.(models.Analysis), nil
}

func (e *Engine) compute(ctx context.Context, messageID int64, userID int64, onStatus func(string)) (models.Analysis, error) {
	onStatus("Analyzing message...")

	target, err := e.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Analysis{}, err
	}

	onStatus("Building context window...")
	window, err := e.buildContextWindow(ctx, target)
	if err != nil {
		return models.Analysis{}, err
	}

	onStatus("Searching for similar messages...")
	matches, err := e.search.Search(ctx, target.Content, e.topK, e.minScore)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("similarity search: %w", err)
	}
	similar := toSimilarMessages(matches)

	onStatus("Generating analysis...")
	text, err := e.llm.Chat(ctx, analysisInstructions, buildAnalysisPrompt(window, similar))
	if err != nil {
		return models.Analysis{}, fmt.Errorf("generate analysis: %w", err)
	}

	result := decodeGenerated(text)
	result.MessageID = messageID
	result.ContextMessages = window
	result.SimilarMessages = similar
	result.CreatedBy = userID
	result.CreatedAt = e.now()

	if err := e.cache.Upsert(ctx, result); err != nil {
		return models.Analysis{}, fmt.Errorf("store analysis: %w", err)
	}
	return result, nil
}

// buildContextWindow collects up to contextWindowSize immediately preceding
// messages plus the target, chronologically ordered. Oversized contents are
// truncated to their first chunk and flagged.
func (e *Engine) buildContextWindow(ctx context.Context, target models.Message) ([]models.ContextMessage, error) {
	preceding, err := e.messages.PrecedingMessages(ctx, target, contextWindowSize)
	if err != nil {
		return nil, fmt.Errorf("load preceding messages: %w", err)
	}

	all := append(preceding, target)
	senderIDs := make([]int64, 0, len(all))
	seen := map[int64]struct{}{}
	for _, m := range all {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	usernames, err := e.users.UsernamesByIDs(ctx, senderIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve sender names: %w", err)
	}

	window := make([]models.ContextMessage, 0, len(all))
	for _, m := range all {
		content, truncated := e.splitter.FirstChunk(m.Content)
		window = append(window, models.ContextMessage{
			MessageID: m.ID,
			Sender:    usernames[m.SenderID],
			Content:   content,
			CreatedAt: m.CreatedAt,
			IsTarget:  m.ID == target.ID,
			Chunked:   truncated,
		})
	}
	return window, nil
}

func toSimilarMessages(matches []vectorindex.Match) []models.SimilarMessage {
	similar := make([]models.SimilarMessage, 0, len(matches))
	for _, m := range matches {
		createdAt, _ := time.Parse(time.RFC3339, m.Metadata.Timestamp)
		similar = append(similar, models.SimilarMessage{
			Content:      m.Content,
			Sender:       m.Metadata.Sender,
			Conversation: m.Metadata.Conversation,
			CreatedAt:    createdAt,
			Score:        m.Score,
		})
	}
	return similar
}

func buildAnalysisPrompt(window []models.ContextMessage, similar []models.SimilarMessage) string {
	var b strings.Builder
	b.WriteString("Conversation context (chronological):\n")
	for _, m := range window {
		marker := ""
		if m.IsTarget {
			marker = " <-- message to analyze"
		}
		fmt.Fprintf(&b, "[%s]: %s%s\n", m.Sender, m.Content, marker)
	}
	if len(similar) > 0 {
		b.WriteString("\nRelated historical messages:\n")
		for _, m := range similar {
			fmt.Fprintf(&b, "[%s in %s]: %s\n", m.Sender, m.Conversation, m.Content)
		}
	}
	return b.String()
}

type generatedFields struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	Tone        string   `json:"tone"`
	ActionItems []string `json:"action_items"`
	Patterns    []string `json:"patterns"`
}

// decodeGenerated parses the model's JSON reply, tolerating fenced code
// blocks. A reply that is not valid JSON degrades to a summary-only result
// rather than failing the whole pipeline.
func decodeGenerated(text string) models.Analysis {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var fields generatedFields
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return models.Analysis{Summary: cleaned, Tone: "unknown"}
	}
	return models.Analysis{
		Summary:     fields.Summary,
		KeyPoints:   fields.KeyPoints,
		Tone:        fields.Tone,
		ActionItems: fields.ActionItems,
		Patterns:    fields.Patterns,
	}
}
