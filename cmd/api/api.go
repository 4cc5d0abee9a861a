package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/clipwave/clipwave/internal/auth"
	"github.com/clipwave/clipwave/internal/blob"
	"github.com/clipwave/clipwave/internal/events"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/middleware"
	"github.com/clipwave/clipwave/internal/playback"
	"github.com/clipwave/clipwave/internal/processing"
	"github.com/clipwave/clipwave/internal/project"
	"github.com/clipwave/clipwave/internal/store"
	"github.com/clipwave/clipwave/internal/upload"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gin-gonic/gin"
)

// Assistant answers chat messages and never fails
type Assistant interface {
	Complete(ctx context.Context, messages []models.ChatMessage) string
}

// MetadataLookup resolves a video URL to its public metadata
type MetadataLookup interface {
	Lookup(ctx context.Context, req models.VideoLookupRequest) (*models.VideoLookupResponse, error)
}

// API holds every collaborator the handlers use
type API struct {
	logger    *logging.Logger
	auth      *auth.Store
	tokens    *middleware.Tokens
	sessions  *store.Manager
	factory   *project.Factory
	registry  *blob.Registry
	uploads   *upload.Stager
	processor *processing.Service
	playback  *playback.Resolver
	hub       *events.Hub
	publisher events.Publisher
	assistant Assistant
	metadata  MetadataLookup
	checks    map[string]metrics.Probe
}

// session returns the store of the authenticated user. On failure the
// response has been written.
func (api *API) session(c *gin.Context) (*store.Store, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required", "redirect": middleware.LoginRedirect})
		return nil, false
	}

	st, err := api.sessions.For(c.Request.Context(), userID)
	if err != nil {
		api.logger.WithUserID(userID).WithError(err).Error("failed to load session")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session is still loading", "retry": true})
		return nil, false
	}
	return st, true
}

// save persists st. A failed save is logged and does not fail the request.
func (api *API) save(c *gin.Context, st *store.Store) {
	if err := st.Save(c.Request.Context()); err != nil {
		api.logger.WithUserID(st.UserID()).WithError(err).Warn("failed to persist session")
	}
}

func (api *API) publish(ctx context.Context, e models.ProjectEvent) {
	if err := api.publisher.Publish(ctx, e); err != nil {
		api.logger.WithProjectID(e.ProjectID).WithError(err).Warn("failed to publish event")
	}
}

// respondError maps domain errors to HTTP responses
func (api *API) respondError(c *gin.Context, err error) {
	var missing *store.MissingStateError

	if ve, ok := videoutil.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field, "kind": ve.Kind})
		return
	}

	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusConflict, gin.H{"error": missing.Error(), "redirect": missing.Redirect()})
	case errors.Is(err, processing.ErrAlreadyRunning), errors.Is(err, processing.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, playback.ErrRetriesExhausted):
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "redirect": store.UploadRedirect})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Request cancelled", "retry": true})
	default:
		metrics.RecordError("api", "internal")
		api.logger.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
