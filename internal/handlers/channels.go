package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"teamchat/internal/models"
	"teamchat/internal/repositories"
	"teamchat/internal/telemetry"
)

// VectorDeleter removes a message's chunks from the semantic index.
type VectorDeleter interface {
	DeleteByMessageID(ctx context.Context, messageID int64) error
}

// ChannelHandler manages channel and channel-message endpoints.
type ChannelHandler struct {
	channelRepo repositories.ChannelRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	publisher   Publisher
	vectors     VectorDeleter
	emitter     *telemetry.AuditEmitter
}

// NewChannelHandler builds a ChannelHandler.
func NewChannelHandler(
	channelRepo repositories.ChannelRepository,
	messageRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
	publisher Publisher,
	vectors VectorDeleter,
	emitter *telemetry.AuditEmitter,
) *ChannelHandler {
	return &ChannelHandler{
		channelRepo: channelRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		publisher:   publisher,
		vectors:     vectors,
		emitter:     emitter,
	}
}

// ListChannels returns the channels visible to the authenticated user.
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	userID := c.GetInt64("userID")

	channels, err := h.channelRepo.ListChannelsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channels"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// CreateChannel creates a channel owned by the caller.
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req struct {
		Name      string  `json:"name" binding:"required"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	channel, err := h.channelRepo.CreateChannel(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create channel"})
		return
	}

	c.JSON(http.StatusCreated, channel)
}

// JoinChannel adds the caller to a channel.
func (h *ChannelHandler) JoinChannel(c *gin.Context) {
	channelID, ok := pathID(c, "channel_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	userID := c.GetInt64("userID")
	if _, err := h.channelRepo.GetChannel(c.Request.Context(), channelID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChannelNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "channel not found"})
		return
	}

	if err := h.channelRepo.AddMember(c.Request.Context(), channelID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join channel"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListMessages returns recent channel messages with sender usernames.
func (h *ChannelHandler) ListMessages(c *gin.Context) {
	channelID, ok := pathID(c, "channel_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	userID := c.GetInt64("userID")
	member, err := h.channelRepo.IsMember(c.Request.Context(), channelID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	msgs, err := h.messageRepo.ListChannelMessages(c.Request.Context(), channelID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	resp, err := h.withSenderNames(c, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// PostMessage stores a channel message and publishes it to subscribers.
func (h *ChannelHandler) PostMessage(c *gin.Context) {
	channelID, ok := pathID(c, "channel_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	userID := c.GetInt64("userID")
	member, err := h.channelRepo.IsMember(c.Request.Context(), channelID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a channel member"})
		return
	}

	var req struct {
		Content         string `json:"content" binding:"required"`
		ParentMessageID *int64 `json:"parent_message_id"`
		FileID          *string `json:"file_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), repositories.CreateMessageParams{
		ChannelID: &channelID,
		ParentID:  req.ParentMessageID,
		SenderID:  userID,
		Content:   req.Content,
		FileID:    req.FileID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	publishConversationEvent(c.Request.Context(), h.publisher, msg.ConversationKey(), models.Event{
		Type:         models.EventNewMessage,
		Conversation: msg.ConversationKey(),
		Message:      &msg,
	})
	c.JSON(http.StatusCreated, msg)
}

// EditMessage updates a message's content. Only the sender may edit.
func (h *ChannelHandler) EditMessage(c *gin.Context) {
	channelID, ok := pathID(c, "channel_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	existing, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if existing.ChannelID == nil || *existing.ChannelID != channelID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to channel"})
		return
	}
	if existing.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can edit"})
		return
	}

	msg, err := h.messageRepo.UpdateMessageContent(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not edit message"})
		return
	}

	publishConversationEvent(c.Request.Context(), h.publisher, msg.ConversationKey(), models.Event{
		Type:         models.EventMessageUpdated,
		Conversation: msg.ConversationKey(),
		Message:      &msg,
	})
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage removes a message, its vectors, and notifies subscribers.
func (h *ChannelHandler) DeleteMessage(c *gin.Context) {
	channelID, ok := pathID(c, "channel_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID := c.GetInt64("userID")
	existing, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if existing.ChannelID == nil || *existing.ChannelID != channelID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to channel"})
		return
	}
	if existing.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete"})
		return
	}

	if err := h.messageRepo.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	if h.vectors != nil {
		// The message row is already gone; stale vectors would only be
		// overwritten by the next reindex run, so log and move on.
		if err := h.vectors.DeleteByMessageID(c.Request.Context(), messageID); err != nil {
			logrus.WithError(err).WithField("message_id", messageID).Warn("failed to delete message vectors")
		}
	}

	key := existing.ConversationKey()
	publishConversationEvent(c.Request.Context(), h.publisher, key, models.Event{
		Type:         models.EventMessageDeleted,
		Conversation: key,
		MessageID:    messageID,
	})
	h.emitter.Emit(c.Request.Context(), "INFO",
		fmt.Sprintf("message %d deleted from %s", messageID, key),
		requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}

func (h *ChannelHandler) withSenderNames(c *gin.Context, msgs []models.Message) ([]messageResponse, error) {
	return attachSenderNames(c, h.userRepo, msgs)
}
