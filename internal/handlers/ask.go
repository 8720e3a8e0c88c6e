package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamchat/internal/rag"
	"teamchat/internal/telemetry"
)

// Asker answers free-text questions grounded in chat history.
type Asker interface {
	Ask(ctx context.Context, query string) (rag.Answer, error)
}

// AskHandler serves the knowledge-base question endpoint.
type AskHandler struct {
	engine  Asker
	emitter *telemetry.AuditEmitter
}

// NewAskHandler builds an AskHandler.
func NewAskHandler(engine Asker, emitter *telemetry.AuditEmitter) *AskHandler {
	return &AskHandler{engine: engine, emitter: emitter}
}

// Ask answers a question from indexed chat history.
func (h *AskHandler) Ask(c *gin.Context) {
	var req struct {
		Query string `json:"query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.engine.Ask(c.Request.Context(), req.Query)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to answer question"})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO", "knowledge base question answered",
		requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusOK, answer)
}
