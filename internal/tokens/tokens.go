// Package tokens issues and verifies the service's own HS256 access tokens.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doctrack/doctrack/internal/models"
	"github.com/doctrack/doctrack/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret is returned when the signing secret is not configured.
var ErrNoSecret = errors.New("jwt secret not configured")

// Issuer signs access tokens carrying the caller's role, department and
// session generation.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a signed access token for p bound to session generation gen.
func (i *Issuer) Issue(p models.Principal, gen int64) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNoSecret
	}
	now := i.now()
	claims := jwt.MapClaims{
		"sub":        p.ID,
		"name":       p.DisplayName,
		"role":       string(p.Role),
		"department": p.Department,
		"gen":        gen,
		"iat":        now.Unix(),
		"exp":        now.Add(i.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

type mapToken jwt.MapClaims

func (t mapToken) Claims(v interface{}) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Verify checks signature and expiry. Only HS256 is accepted.
func (i *Issuer) Verify(_ context.Context, raw string) (middleware.Token, error) {
	if len(i.secret) == 0 {
		return nil, ErrNoSecret
	}
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return mapToken(claims), nil
}
