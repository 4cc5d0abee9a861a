package main

import (
	"github.com/clipwave/clipwave/internal/middleware"
	"github.com/gin-gonic/gin"
)

func setupRouter(api *API, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Tracing(), middleware.Logger(api.logger))

	// Health check
	router.GET("/health", api.healthCheck)

	// Collaborators
	public := router.Group("/api", middleware.RateLimit(limiter))
	{
		public.POST("/chat", api.chatHandler)
		public.POST("/youtube-download", api.youtubeLookupHandler)
	}

	v1 := router.Group("/api/v1")
	{
		// Auth
		authRoutes := v1.Group("/auth", middleware.RateLimit(limiter))
		authRoutes.POST("/signup", api.signupHandler)
		authRoutes.POST("/login", api.loginHandler)
		authRoutes.POST("/google", api.googleLoginHandler)

		v1.GET("/plans", api.listPlansHandler)
	}

	guarded := v1.Group("", middleware.RouteGuard(api.tokens, api.auth, api.auth))
	{
		guarded.POST("/auth/logout", api.logoutHandler)
		guarded.GET("/me", api.getMeHandler)
		guarded.PATCH("/me", api.updateMeHandler)

		// Default settings for new projects
		guarded.GET("/settings", api.getSettingsHandler)
		guarded.PATCH("/settings", api.updateSettingsHandler)

		guarded.POST("/files/validate", api.validateFileHandler)

		// Projects
		guarded.POST("/projects", api.uploadProjectHandler)
		guarded.GET("/projects", api.listProjectsHandler)
		guarded.GET("/projects/current", api.getCurrentProjectHandler)
		guarded.PUT("/projects/current", api.setCurrentProjectHandler)
		guarded.GET("/projects/:id", api.getProjectHandler)
		guarded.PATCH("/projects/:id", api.updateProjectHandler)
		guarded.DELETE("/projects/:id", api.deleteProjectHandler)
		guarded.POST("/projects/:id/process", api.startProcessingHandler)
		guarded.DELETE("/projects/:id/process", api.cancelProcessingHandler)
		guarded.GET("/projects/:id/events", api.projectEventsHandler)

		// Session
		guarded.GET("/session", api.getSessionHandler)
		guarded.DELETE("/session/file", api.clearSessionFileHandler)
		guarded.PUT("/session/url", api.setSessionURLHandler)

		// Playback
		guarded.GET("/playback", api.playbackHandler)
		guarded.POST("/playback/retry", api.playbackRetryHandler)
		guarded.POST("/playback/loaded", api.playbackLoadedHandler)
		guarded.GET("/blobs/:id", api.blobHandler)
	}

	return router
}
