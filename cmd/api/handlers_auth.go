package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/clipwave/clipwave/internal/auth"
	"github.com/clipwave/clipwave/internal/middleware"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gin-gonic/gin"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the body of every auth endpoint
type authResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Retry   bool         `json:"retry,omitempty"`
	Token   string       `json:"token,omitempty"`
	User    *models.User `json:"user,omitempty"`
}

func (api *API) signupHandler(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, authResponse{Error: "Invalid request body"})
		return
	}

	sess, err := api.auth.Signup(c.Request.Context(), req.Name, req.Email, req.Password)
	api.respondSession(c, http.StatusCreated, sess, err)
}

func (api *API) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, authResponse{Error: "Invalid request body"})
		return
	}

	sess, err := api.auth.Login(c.Request.Context(), req.Email, req.Password)
	api.respondSession(c, http.StatusOK, sess, err)
}

func (api *API) googleLoginHandler(c *gin.Context) {
	sess, err := api.auth.LoginWithGoogle(c.Request.Context())
	api.respondSession(c, http.StatusOK, sess, err)
}

func (api *API) respondSession(c *gin.Context, status int, sess *auth.Session, err error) {
	if err != nil {
		code := http.StatusInternalServerError
		if _, ok := videoutil.AsValidation(err); ok {
			code = http.StatusBadRequest
		}
		retry := false
		switch {
		case errors.Is(err, auth.ErrNotHydrated):
			code, retry = http.StatusServiceUnavailable, true
		case errors.Is(err, auth.ErrEmailTaken):
			code = http.StatusConflict
		case errors.Is(err, auth.ErrInvalidCredentials):
			code = http.StatusUnauthorized
		case errors.Is(err, auth.ErrTooManyAttempts):
			code = http.StatusTooManyRequests
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			code, retry = http.StatusServiceUnavailable, true
		}
		if code == http.StatusInternalServerError {
			api.logger.WithError(err).Error("authentication failed")
		}
		c.JSON(code, authResponse{Error: err.Error(), Retry: retry})
		return
	}

	token, err := api.tokens.Issue(sess.User.ID, sess.ID)
	if err != nil {
		api.logger.WithError(err).Error("failed to issue token")
		c.JSON(http.StatusInternalServerError, authResponse{Error: "Failed to issue token"})
		return
	}

	c.JSON(status, authResponse{Success: true, Token: token, User: &sess.User})
}

func (api *API) logoutHandler(c *gin.Context) {
	sessionID, _ := middleware.GetSessionID(c)
	api.auth.Logout(c.Request.Context(), sessionID)
	c.JSON(http.StatusOK, authResponse{Success: true})
}

func (api *API) getMeHandler(c *gin.Context) {
	user, _ := c.Get(middleware.UserContextKey)
	c.JSON(http.StatusOK, user)
}

func (api *API) updateMeHandler(c *gin.Context) {
	var patch models.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	userID, _ := middleware.GetUserID(c)
	user, err := api.auth.UpdateUser(c.Request.Context(), userID, patch)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
