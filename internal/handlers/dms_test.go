package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teamchat/internal/mocks"
	"teamchat/internal/models"
	"teamchat/internal/repositories"
)

func setupDMRouter(handler *DMHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.POST("/dms/start", handler.StartThread)
	r.GET("/dms/:dm_id/messages", handler.ListMessages)
	r.POST("/dms/:dm_id/messages", handler.PostMessage)
	return r
}

func TestStartThreadSuccess(t *testing.T) {
	dmRepo := new(mocks.DMRepositoryMock)
	handler := NewDMHandler(dmRepo, nil, nil, nil)
	router := setupDMRouter(handler)

	dmRepo.On("CreateOrGetThread", mock.Anything, int64(1), int64(2)).
		Return(models.DMThread{ID: 9, User1ID: 1, User2ID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/dms/start", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"dm_id":9`)
	dmRepo.AssertExpectations(t)
}

func TestStartThreadWithSelfRejected(t *testing.T) {
	dmRepo := new(mocks.DMRepositoryMock)
	handler := NewDMHandler(dmRepo, nil, nil, nil)
	router := setupDMRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/dms/start", bytes.NewBufferString(`{"user_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	dmRepo.AssertNotCalled(t, "CreateOrGetThread", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostDMMessagePublishesToThreadKey(t *testing.T) {
	dmRepo := new(mocks.DMRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	publisher := new(mocks.PublisherMock)
	handler := NewDMHandler(dmRepo, messageRepo, nil, publisher)
	router := setupDMRouter(handler)

	dmID := int64(9)
	stored := models.Message{ID: 20, DMID: &dmID, SenderID: 1, Content: "hi"}
	dmRepo.On("GetThread", mock.Anything, dmID).Return(models.DMThread{ID: 9, User1ID: 1, User2ID: 2}, nil).Once()
	dmRepo.On("IsParticipant", mock.Anything, dmID, int64(1)).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.CreateMessageParams) bool {
		return p.DMID != nil && *p.DMID == 9 && p.ChannelID == nil
	})).Return(stored, nil).Once()
	publisher.On("Publish", mock.Anything, "conv.dm:9", mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/dms/9/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	publisher.AssertExpectations(t)
}

func TestPostDMMessageUnknownThread(t *testing.T) {
	dmRepo := new(mocks.DMRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewDMHandler(dmRepo, messageRepo, nil, nil)
	router := setupDMRouter(handler)

	dmRepo.On("GetThread", mock.Anything, int64(9)).Return(models.DMThread{}, repositories.ErrThreadNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/dms/9/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}
