// Package mocks holds hand-written testify mocks for the repository and
// engine interfaces handlers depend on.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"teamchat/internal/models"
	"teamchat/internal/rag"
	"teamchat/internal/repositories"
	"teamchat/internal/vectorindex"
)

type ChannelRepositoryMock struct {
	mock.Mock
}

func (m *ChannelRepositoryMock) CreateChannel(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Channel, error) {
	args := m.Called(ctx, ownerID, name, memberIDs)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) GetChannel(ctx context.Context, channelID int64) (models.Channel, error) {
	args := m.Called(ctx, channelID)
	var channel models.Channel
	if val := args.Get(0); val != nil {
		channel = val.(models.Channel)
	}
	return channel, args.Error(1)
}

func (m *ChannelRepositoryMock) ListChannelsForUser(ctx context.Context, userID int64) ([]models.Channel, error) {
	args := m.Called(ctx, userID)
	var list []models.Channel
	if val := args.Get(0); val != nil {
		list = val.([]models.Channel)
	}
	return list, args.Error(1)
}

func (m *ChannelRepositoryMock) IsMember(ctx context.Context, channelID int64, userID int64) (bool, error) {
	args := m.Called(ctx, channelID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChannelRepositoryMock) AddMember(ctx context.Context, channelID int64, userID int64) error {
	args := m.Called(ctx, channelID, userID)
	return args.Error(0)
}

type DMRepositoryMock struct {
	mock.Mock
}

func (m *DMRepositoryMock) CreateOrGetThread(ctx context.Context, userID int64, otherID int64) (models.DMThread, error) {
	args := m.Called(ctx, userID, otherID)
	var thread models.DMThread
	if val := args.Get(0); val != nil {
		thread = val.(models.DMThread)
	}
	return thread, args.Error(1)
}

func (m *DMRepositoryMock) GetThread(ctx context.Context, dmID int64) (models.DMThread, error) {
	args := m.Called(ctx, dmID)
	var thread models.DMThread
	if val := args.Get(0); val != nil {
		thread = val.(models.DMThread)
	}
	return thread, args.Error(1)
}

func (m *DMRepositoryMock) IsParticipant(ctx context.Context, dmID int64, userID int64) (bool, error) {
	args := m.Called(ctx, dmID, userID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, params repositories.CreateMessageParams) (models.Message, error) {
	args := m.Called(ctx, params)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListChannelMessages(ctx context.Context, channelID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, channelID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListDMMessages(ctx context.Context, dmID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, dmID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateMessageContent(ctx context.Context, messageID int64, senderID int64, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int64, senderID int64) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) PrecedingMessages(ctx context.Context, msg models.Message, limit int) ([]models.Message, error) {
	args := m.Called(ctx, msg, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListForIndex(ctx context.Context, since *time.Time, offset int, limit int) ([]models.IndexableMessage, error) {
	args := m.Called(ctx, since, offset, limit)
	var msgs []models.IndexableMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.IndexableMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountForIndex(ctx context.Context, since *time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) Toggle(ctx context.Context, messageID int64, userID int64, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

func (m *ReactionRepositoryMock) Aggregate(ctx context.Context, messageID int64) ([]models.ReactionCount, error) {
	args := m.Called(ctx, messageID)
	var counts []models.ReactionCount
	if val := args.Get(0); val != nil {
		counts = val.([]models.ReactionCount)
	}
	return counts, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	args := m.Called(ctx, ids)
	var names map[int64]string
	if val := args.Get(0); val != nil {
		names = val.(map[int64]string)
	}
	return names, args.Error(1)
}

type AnalysisEngineMock struct {
	mock.Mock
}

func (m *AnalysisEngineMock) Cached(ctx context.Context, messageID int64) (models.Analysis, bool, error) {
	args := m.Called(ctx, messageID)
	var result models.Analysis
	if val := args.Get(0); val != nil {
		result = val.(models.Analysis)
	}
	return result, args.Bool(1), args.Error(2)
}

func (m *AnalysisEngineMock) Authorize(ctx context.Context, messageID int64, userID int64) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *AnalysisEngineMock) Analyze(ctx context.Context, messageID int64, userID int64, onStatus func(string)) (models.Analysis, error) {
	args := m.Called(ctx, messageID, userID, onStatus)
	var result models.Analysis
	if val := args.Get(0); val != nil {
		result = val.(models.Analysis)
	}
	return result, args.Error(1)
}

type AskerMock struct {
	mock.Mock
}

func (m *AskerMock) Ask(ctx context.Context, query string) (rag.Answer, error) {
	args := m.Called(ctx, query)
	var answer rag.Answer
	if val := args.Get(0); val != nil {
		answer = val.(rag.Answer)
	}
	return answer, args.Error(1)
}

type StatsProviderMock struct {
	mock.Mock
}

func (m *StatsProviderMock) Stats(ctx context.Context) (vectorindex.Stats, error) {
	args := m.Called(ctx)
	var stats vectorindex.Stats
	if val := args.Get(0); val != nil {
		stats = val.(vectorindex.Stats)
	}
	return stats, args.Error(1)
}

type VectorDeleterMock struct {
	mock.Mock
}

func (m *VectorDeleterMock) DeleteByMessageID(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}
