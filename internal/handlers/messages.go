package handlers

import (
	"github.com/gin-gonic/gin"

	"teamchat/internal/models"
	"teamchat/internal/repositories"
)

// messageResponse is a message decorated with its sender's username.
type messageResponse struct {
	models.Message
	SenderUsername string `json:"sender_username,omitempty"`
}

func attachSenderNames(c *gin.Context, users repositories.UserRepository, msgs []models.Message) ([]messageResponse, error) {
	senderIDs := make([]int64, 0, len(msgs))
	seen := map[int64]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	names, err := users.UsernamesByIDs(c.Request.Context(), senderIDs)
	if err != nil {
		return nil, err
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{Message: m, SenderUsername: names[m.SenderID]})
	}
	return resp, nil
}
