package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"teamchat/internal/models"
	"teamchat/internal/realtime"
)

const requestIDContextKey = "request_id"

// Publisher is the broker surface handlers publish conversation events to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

func publishConversationEvent(ctx context.Context, publisher Publisher, key string, event models.Event) {
	if publisher == nil || key == "" {
		return
	}
	_ = publisher.Publish(ctx, realtime.RoutingKey(key), event)
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(int64); ok && userID != 0 {
			value := userID
			return &value
		}
	}

	if header := c.GetHeader("X-User-ID"); header != "" {
		if parsed, err := strconv.ParseInt(header, 10, 64); err == nil {
			return &parsed
		}
	}

	return nil
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
