package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/doctrack/doctrack/internal/models"
	"github.com/doctrack/doctrack/internal/sessions"
	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/doctrack/doctrack/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// UserSyncer records the identity of a signed-in principal.
type UserSyncer interface {
	Sync(ctx context.Context, p models.Principal, email string) (*models.User, error)
}

// SessionTracker owns the per-user login generation.
type SessionTracker interface {
	Begin(ctx context.Context, userID string) (*sessions.Session, error)
	Check(ctx context.Context, userID string, generation int64) (sessions.State, error)
	End(ctx context.Context, userID string, generation int64) (bool, error)
}

// AccessIssuer signs application access tokens.
type AccessIssuer interface {
	Issue(p models.Principal, gen int64) (string, error)
	TTL() time.Duration
}

// Revoker blacklists an access token until it would have expired.
type Revoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// AuthHandler holds dependencies
type AuthHandler struct {
	users    UserSyncer
	sessions SessionTracker
	issuer   AccessIssuer
	revoker  Revoker
}

func NewAuthHandler(u UserSyncer, s SessionTracker, iss AccessIssuer, rev Revoker) *AuthHandler {
	return &AuthHandler{users: u, sessions: s, issuer: iss, revoker: rev}
}

// Register routes under /auth. rg must already run the auth middleware.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/session", h.Begin)
	a.GET("/session/:generation", h.Check)
	a.DELETE("/session/:generation", h.End)
	a.GET("/me", h.Me)
}

// Begin starts a new login generation for the caller and returns an
// access token bound to it. Any earlier generation becomes superseded.
func (h *AuthHandler) Begin(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	claims := claimsFrom(c)
	email, _ := claims["email"].(string)
	u, err := h.users.Sync(c.Request.Context(), p, email)
	if err != nil {
		logger.Errorf("user sync error: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user sync failed"})
		return
	}
	sess, err := h.sessions.Begin(c.Request.Context(), p.ID)
	if err != nil {
		logger.Errorf("failed to begin session: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to create session"})
		return
	}
	resp := gin.H{
		"generation": sess.Generation,
		"expiresAt":  sess.ExpiresAt,
		"user":       u,
	}
	if h.issuer != nil {
		access, err := h.issuer.Issue(p, sess.Generation)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
			return
		}
		resp["accessToken"] = access
		resp["expiresIn"] = int(h.issuer.TTL().Seconds())
	}
	c.JSON(http.StatusOK, resp)
}

func generationParam(c *gin.Context) (int64, bool) {
	gen, err := strconv.ParseInt(c.Param("generation"), 10, 64)
	if err != nil || gen < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "generation must be a positive integer"})
		return 0, false
	}
	return gen, true
}

// Check reports whether the caller's generation is still the live login.
func (h *AuthHandler) Check(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	gen, ok := generationParam(c)
	if !ok {
		return
	}
	state, err := h.sessions.Check(c.Request.Context(), p.ID, gen)
	if err != nil {
		logger.Errorf("session check error: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session check failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"generation": gen, "state": state})
}

// End signs the generation out and blacklists the bearer token used for
// the call until its own expiry.
func (h *AuthHandler) End(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	gen, ok := generationParam(c)
	if !ok {
		return
	}
	if h.revoker != nil {
		if ttl := time.Until(expiryFromClaims(claimsFrom(c))); ttl > 0 {
			if err := h.revoker.Revoke(c.Request.Context(), c.GetString(middleware.TokenKey), ttl); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to blacklist access token"})
				return
			}
		}
	}
	ended, err := h.sessions.End(c.Request.Context(), p.ID, gen)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to remove session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": ended})
}

// Me returns the principal resolved from the bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func claimsFrom(c *gin.Context) map[string]interface{} {
	v, _ := c.Get(middleware.ClaimsKey)
	claims, _ := v.(map[string]interface{})
	return claims
}

// expiryFromClaims reads the exp claim; zero when absent.
func expiryFromClaims(claims map[string]interface{}) time.Time {
	switch v := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	}
	return time.Time{}
}
