package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/doctrack/doctrack/internal/models"
	"github.com/gin-gonic/gin"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Revocations reports tokens that were signed out before expiry.
type Revocations interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// FirstOf tries each verifier in order and returns the first success.
type FirstOf []Verifier

func (f FirstOf) Verify(ctx context.Context, raw string) (Token, error) {
	var errs []error
	for _, v := range f {
		if v == nil {
			continue
		}
		t, err := v.Verify(ctx, raw)
		if err == nil {
			return t, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no verifier configured")
	}
	return nil, errors.Join(errs...)
}

const (
	ClaimsKey    = "claims"
	PrincipalKey = "principal"
	TokenKey     = "accessToken"
)

type authOptions struct {
	revoked      Revocations
	dispatchRole string
}

type AuthOption func(*authOptions)

// WithRevocations rejects tokens found in r.
func WithRevocations(r Revocations) AuthOption {
	return func(o *authOptions) { o.revoked = r }
}

// WithDispatchRole sets the claim value mapped to the dispatch role.
func WithDispatchRole(name string) AuthOption {
	return func(o *authOptions) { o.dispatchRole = name }
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier, opts ...AuthOption) gin.HandlerFunc {
	var o authOptions
	for _, fn := range opts {
		fn(&o)
	}
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		if o.revoked != nil {
			revoked, err := o.revoked.IsRevoked(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token revocation check failed"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		p := PrincipalFromClaims(claims, o.dispatchRole)
		if p.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(PrincipalKey, p)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// PrincipalFromClaims maps identity claims to a Principal. The role comes
// from a "role" claim or, for Keycloak tokens, from realm_access.roles.
func PrincipalFromClaims(claims map[string]interface{}, dispatchRole string) models.Principal {
	str := func(k string) string {
		s, _ := claims[k].(string)
		return strings.TrimSpace(s)
	}
	p := models.Principal{ID: str("sub"), Department: str("department")}
	for _, k := range []string{"name", "preferred_username", "email"} {
		if p.DisplayName = str(k); p.DisplayName != "" {
			break
		}
	}
	p.Role = models.RoleUser
	if r := str("role"); r != "" {
		p.Role = models.ParseRole(r, dispatchRole)
		return p
	}
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		roles, _ := ra["roles"].([]interface{})
		for _, r := range roles {
			s, _ := r.(string)
			switch models.ParseRole(s, dispatchRole) {
			case models.RoleAdmin:
				p.Role = models.RoleAdmin
				return p
			case models.RoleDispatch:
				p.Role = models.RoleDispatch
			}
		}
	}
	return p
}

// PrincipalFrom returns the caller set by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}
