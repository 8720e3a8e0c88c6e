package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"teamchat/internal/models"
	"teamchat/internal/repositories"
)

// DMHandler manages direct-message endpoints.
type DMHandler struct {
	dmRepo      repositories.DMRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	publisher   Publisher
}

// NewDMHandler builds a DMHandler.
func NewDMHandler(dmRepo repositories.DMRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, publisher Publisher) *DMHandler {
	return &DMHandler{
		dmRepo:      dmRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		publisher:   publisher,
	}
}

// StartThread creates or returns the DM thread between the caller and
// another user.
func (h *DMHandler) StartThread(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	if userID == req.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}

	thread, err := h.dmRepo.CreateOrGetThread(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start thread"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dm_id": thread.ID})
}

// ListMessages returns recent DM messages with sender usernames.
func (h *DMHandler) ListMessages(c *gin.Context) {
	dmID, ok := pathID(c, "dm_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dm id"})
		return
	}

	userID := c.GetInt64("userID")
	participant, err := h.dmRepo.IsParticipant(c.Request.Context(), dmID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify participation"})
		return
	}
	if !participant {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a thread participant"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	msgs, err := h.messageRepo.ListDMMessages(c.Request.Context(), dmID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	resp, err := attachSenderNames(c, h.userRepo, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// PostMessage stores a DM message and publishes it to subscribers.
func (h *DMHandler) PostMessage(c *gin.Context) {
	dmID, ok := pathID(c, "dm_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dm id"})
		return
	}

	userID := c.GetInt64("userID")
	if _, err := h.dmRepo.GetThread(c.Request.Context(), dmID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrThreadNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "thread not found"})
		return
	}

	participant, err := h.dmRepo.IsParticipant(c.Request.Context(), dmID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify participation"})
		return
	}
	if !participant {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a thread participant"})
		return
	}

	var req struct {
		Content         string  `json:"content" binding:"required"`
		ParentMessageID *int64  `json:"parent_message_id"`
		FileID          *string `json:"file_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), repositories.CreateMessageParams{
		DMID:     &dmID,
		ParentID: req.ParentMessageID,
		SenderID: userID,
		Content:  req.Content,
		FileID:   req.FileID,
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
