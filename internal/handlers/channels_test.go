package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teamchat/internal/mocks"
	"teamchat/internal/models"
	"teamchat/internal/repositories"
)

func setupChannelRouter(handler *ChannelHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/channels", handler.ListChannels)
	r.POST("/channels", handler.CreateChannel)
	r.GET("/channels/:channel_id/messages", handler.ListMessages)
	r.POST("/channels/:channel_id/messages", handler.PostMessage)
	r.PATCH("/channels/:channel_id/messages/:message_id", handler.EditMessage)
	r.DELETE("/channels/:channel_id/messages/:message_id", handler.DeleteMessage)
	return r
}

func channelMessage(id, channelID, senderID int64) models.Message {
	return models.Message{ID: id, ChannelID: &channelID, SenderID: senderID, Content: "hello"}
}

func TestPostMessagePublishesNewMessageEvent(t *testing.T) {
	channelRepo := new(mocks.ChannelRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	publisher := new(mocks.PublisherMock)
	handler := NewChannelHandler(channelRepo, messageRepo, nil, publisher, nil, nil)
	router := setupChannelRouter(handler)

	stored := channelMessage(10, 5, 1)
	channelRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.ChannelID != nil && *p.ChannelID == 5 && p.SenderID == 1 && p.Content == "hello"
	})).Return(stored, nil).Once()
	publisher.On("Publish", mock.Anything, "conv.channel:5", mock.MatchedBy(func(e any) bool {
		event, ok := e.(models.Event)
		return ok && event.Type == models.EventNewMessage && event.Message != nil && event.Message.ID == 10
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/channels/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	channelRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestPostMessageNonMemberForbidden(t *testing.T) {
	channelRepo := new(mocks.ChannelRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChannelHandler(channelRepo, messageRepo, nil, nil, nil, nil)
	router := setupChannelRouter(handler)

	channelRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/channels/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestListMessagesAttachesSenderNames(t *testing.T) {
	channelRepo := new(mocks.ChannelRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewChannelHandler(channelRepo, messageRepo, userRepo, nil, nil, nil)
	router := setupChannelRouter(handler)

	channelRepo.On("IsMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	messageRepo.On("ListChannelMessages", mock.Anything, int64(5), 50).
		Return([]models.Message{channelMessage(1, 5, 2)}, nil).Once()
	userRepo.On("UsernamesByIDs", mock.Anything, []int64{2}).
		Return(map[int64]string{2: "bob"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/channels/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []map[string]any `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "bob", resp.Messages[0]["sender_username"])
}

func TestEditMessageOnlySender(t *testing.T) {
	channelRepo := new(mocks.ChannelRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChannelHandler(channelRepo, messageRepo, nil, nil, nil, nil)
	router := setupChannelRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, int64(10)).Return(channelMessage(10, 5, 2), nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/channels/5/messages/10", bytes.NewBufferString(`{"content":"edited"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "UpdateMessageContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessagePublishesUpdateEvent(t *testing.T) {
	channelRepo := new(mocks.ChannelRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	publisher := new(mocks.PublisherMock)
	handler := NewChannelHandler(channelRepo, messageRepo, nil, publisher, nil, nil)
	router := setupChannelRouter(handler)

	edited := channelMessage(10, 5, 1)
	edited.Edited = true
	messageRepo.On("GetMessage", mock.Anything, int64(10)).Return(channelMessage(10, 5, 1), nil).Once()
	messageRepo.On("UpdateMessageContent", mock.Anything, int64(10), int64(1), "edited").Return(edited, nil).Once()
	publisher.On("Publish", mock.Anything, "conv.channel:5", mock.MatchedBy(func(e any) bool {
		event, ok := e.(models.Event)
		return ok && event.Type == models.EventMessageUpdated && event.Message.Edited
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/channels/5/messages/10", bytes.NewBufferString(`{"content":"edited"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestDeleteMessageRemovesVectorsAndPublishes(t *testing.T) {
	channelRepo := new(mocks.ChannelRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	publisher := new(mocks.PublisherMock)
	vectors := new(mocks.VectorDeleterMock)
	handler := NewChannelHandler(channelRepo, messageRepo, nil, publisher, vectors, nil)
	router := setupChannelRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, int64(10)).Return(channelMessage(10, 5, 1), nil).Once()
	messageRepo.On("DeleteMessage", mock.Anything, int64(10), int64(1)).Return(nil).Once()
	vectors.On("DeleteByMessageID", mock.Anything, int64(10)).Return(nil).Once()
	publisher.On("Publish", mock.Anything, "conv.channel:5", mock.MatchedBy(func(e any) bool {
		event, ok := e.(models.Event)
		return ok && event.Type == models.EventMessageDeleted && event.MessageID == 10
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/channels/5/messages/10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messageRepo.AssertExpectations(t)
	vectors.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestDeleteMessageWrongChannel(t *testing.T) {
	channelRepo := new(mocks.ChannelRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChannelHandler(channelRepo, messageRepo, nil, nil, nil, nil)
	router := setupChannelRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, int64(10)).Return(channelMessage(10, 7, 1), nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/channels/5/messages/10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything)
}
