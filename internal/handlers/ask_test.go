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
	"teamchat/internal/rag"
)

func setupAskRouter(handler *AskHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.POST("/ask", handler.Ask)
	return r
}

func TestAskReturnsAnswerWithContext(t *testing.T) {
	engine := new(mocks.AskerMock)
	handler := NewAskHandler(engine, nil)
	router := setupAskRouter(handler)

	engine.On("Ask", mock.Anything, "when do we ship?").Return(rag.Answer{
		Answer: "Friday.",
		Context: []rag.ContextChunk{{
			Content:  "we ship on friday",
			Metadata: rag.ContextMetadata{Score: 0.9, Sender: "alice", Channel: "general"},
		}},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{"query":"when do we ship?"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rag.Answer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Friday.", resp.Answer)
	require.Len(t, resp.Context, 1)
	assert.Equal(t, "alice", resp.Context[0].Metadata.Sender)
	engine.AssertExpectations(t)
}

func TestAskMissingQueryRejectedBeforeEngine(t *testing.T) {
	engine := new(mocks.AskerMock)
	handler := NewAskHandler(engine, nil)
	router := setupAskRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	engine.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
}

func TestAskUpstreamFailureBadGateway(t *testing.T) {
	engine := new(mocks.AskerMock)
	handler := NewAskHandler(engine, nil)
	router := setupAskRouter(handler)

	engine.On("Ask", mock.Anything, "anything").Return(rag.Answer{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{"query":"anything"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "assert.AnError", "provider errors are not leaked")
}
