package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AuthContextKey    = "user_id"
	SessionContextKey = "session_id"
	UserContextKey    = "user"

	// LoginRedirect is where unauthenticated clients are sent
	LoginRedirect = "/login"
)

// ErrInvalidToken is returned by Parse for malformed, expired or forged tokens
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims represents JWT claims
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Tokens issues and validates HS256 session tokens
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token service signing with secret
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue generates a JWT token binding userID to sessionID
func (t *Tokens) Issue(userID, sessionID string) (string, error) {
	now := t.now()
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns its claims
func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Hydration reports whether persisted auth state has been read
type Hydration interface {
	Hydrated() bool
}

// Sessions resolves a session id to its user
type Sessions interface {
	Authenticate(sessionID string) (models.User, bool)
}

// RouteGuard gates a route group on the auth store. Until the store has
// hydrated it answers 503 with retry set, so a client never gets sent to the
// login page for a session that is merely not loaded yet. A missing or invalid
// token or an ended session answers 401 with a redirect to LoginRedirect.
func RouteGuard(tokens *Tokens, hydration Hydration, sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !hydration.Hydrated() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Session is still loading",
				"retry": true,
			})
			return
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "Authorization required")
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}

		user, ok := sessions.Authenticate(claims.SessionID)
		if !ok || user.ID != claims.UserID {
			unauthorized(c, "Session ended")
			return
		}

		c.Set(AuthContextKey, user.ID)
		c.Set(SessionContextKey, claims.SessionID)
		c.Set(UserContextKey, user)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":    msg,
		"redirect": LoginRedirect,
	})
}

// bearerToken reads "Bearer <token>" from the Authorization header. Websocket
// clients cannot set headers, so a token query parameter is accepted too.
func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetUserID retrieves the user ID from the context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(AuthContextKey)
	if !exists {
		return "", false
	}

	userIDStr, ok := userID.(string)
	return userIDStr, ok
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(c *gin.Context) (string, bool) {
	sessionID, exists := c.Get(SessionContextKey)
	if !exists {
		return "", false
	}

	sessionIDStr, ok := sessionID.(string)
	return sessionIDStr, ok
}
