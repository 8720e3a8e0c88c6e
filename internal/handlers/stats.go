package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamchat/internal/vectorindex"
)

// StatsProvider reports the semantic index's current shape.
type StatsProvider interface {
	Stats(ctx context.Context) (vectorindex.Stats, error)
}

// StatsHandler serves the index observability endpoint.
type StatsHandler struct {
	index StatsProvider
}

// NewStatsHandler builds a StatsHandler.
func NewStatsHandler(index StatsProvider) *StatsHandler {
	return &StatsHandler{index: index}
}

// Get returns vector counts, dimension, and per-source-type namespaces.
func (h *StatsHandler) Get(c *gin.Context) {
	stats, err := h.index.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load index stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
