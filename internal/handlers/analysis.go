package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamchat/internal/analysis"
	"teamchat/internal/models"
	"teamchat/internal/repositories"
	"teamchat/internal/telemetry"
)

// AnalysisEngine is the analysis pipeline surface the handler drives.
type AnalysisEngine interface {
	Cached(ctx context.Context, messageID int64) (models.Analysis, bool, error)
	Authorize(ctx context.Context, messageID int64, userID int64) error
	Analyze(ctx context.Context, messageID int64, userID int64, onStatus func(string)) (models.Analysis, error)
}

// AnalysisHandler serves per-message analyses: cached results as plain JSON,
// live runs as a server-sent event stream.
type AnalysisHandler struct {
	engine  AnalysisEngine
	emitter *telemetry.AuditEmitter
}

// NewAnalysisHandler builds an AnalysisHandler.
func NewAnalysisHandler(engine AnalysisEngine, emitter *telemetry.AuditEmitter) *AnalysisHandler {
	return &AnalysisHandler{engine: engine, emitter: emitter}
}

// Get returns the analysis for a message. A fresh cached result is returned
// as JSON; otherwise the live pipeline streams status events followed by
// exactly one result or error event.
func (h *AnalysisHandler) Get(c *gin.Context) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID := c.GetInt64("userID")
	if err := h.engine.Authorize(c.Request.Context(), messageID, userID); err != nil {
		switch {
		case errors.Is(err, analysis.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to view this message"})
		case errors.Is(err, repositories.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify access"})
		}
		return
	}

	cached, hit, err := h.engine.Cached(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analysis"})
		return
	}
	if hit {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"analysis": cached}})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("analysis requested for message %d", messageID),
		requestIDFromContext(c), userIDFromContext(c))

	// Live path: stream progress. Once headers go out, failures must be
	// delivered as an error event, not a status code.
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	result, err := h.engine.Analyze(c.Request.Context(), messageID, userID, func(status string) {
		c.SSEvent("status", status)
		c.Writer.Flush()
	})
	if err != nil {
		c.SSEvent("error", gin.H{"error": "analysis failed"})
		c.Writer.Flush()
		return
	}

	c.SSEvent("result", result)
	c.Writer.Flush()
}
