package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamchat/internal/models"
	"teamchat/internal/repositories"
)

// ReactionHandler toggles emoji reactions on messages.
type ReactionHandler struct {
	reactionRepo repositories.ReactionRepository
	messageRepo  repositories.MessageRepository
	channelRepo  repositories.ChannelRepository
	dmRepo       repositories.DMRepository
	publisher    Publisher
}

// NewReactionHandler builds a ReactionHandler.
func NewReactionHandler(
	reactionRepo repositories.ReactionRepository,
	messageRepo repositories.MessageRepository,
	channelRepo repositories.ChannelRepository,
	dmRepo repositories.DMRepository,
	publisher Publisher,
) *ReactionHandler {
	return &ReactionHandler{
		reactionRepo: reactionRepo,
		messageRepo:  messageRepo,
		channelRepo:  channelRepo,
		dmRepo:       dmRepo,
		publisher:    publisher,
	}
}

// Toggle adds or removes the caller's reaction and responds with the
// updated aggregate for the message.
func (h *ReactionHandler) Toggle(c *gin.Context) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}

	allowed, err := h.authorized(c, msg, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	added, err := h.reactionRepo.Toggle(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not toggle reaction"})
		return
	}

	counts, err := h.reactionRepo.Aggregate(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load reactions"})
		return
	}

	key := msg.ConversationKey()
	publishConversationEvent(c.Request.Context(), h.publisher, key, models.Event{
		Type:         models.EventReactionsUpdated,
		Conversation: key,
		MessageID:    messageID,
		Reactions:    counts,
	})

	c.JSON(http.StatusOK, gin.H{"added": added, "reactions": counts})
}

func (h *ReactionHandler) authorized(c *gin.Context, msg models.Message, userID int64) (bool, error) {
	switch {
	case msg.ChannelID != nil:
		return h.channelRepo.IsMember(c.Request.Context(), *msg.ChannelID, userID)
	case msg.DMID != nil:
		return h.dmRepo.IsParticipant(c.Request.Context(), *msg.DMID, userID)
	default:
		return false, nil
	}
}
