package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clipwave/clipwave/internal/assistant"
	"github.com/clipwave/clipwave/internal/metadata"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gin-gonic/gin"
)

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for name, check := range api.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"component": name,
				"error":     err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"auth_hydrated": api.auth.Hydrated(),
	})
}

// chatHandler always answers 200, falling back to a canned reply
func (api *API) chatHandler(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, models.ChatResponse{Message: assistant.FallbackMessage})
		return
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		Message: api.assistant.Complete(c.Request.Context(), req.Messages),
	})
}

func (api *API) youtubeLookupHandler(c *gin.Context) {
	var req models.VideoLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao processar o download"})
		return
	}

	resp, err := api.metadata.Lookup(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, metadata.ErrURLRequired), errors.Is(err, metadata.ErrInvalidURL), errors.Is(err, metadata.ErrLookupFailed):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			api.logger.WithError(err).Error("video lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao processar o download"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (api *API) listPlansHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": models.Plans})
}
