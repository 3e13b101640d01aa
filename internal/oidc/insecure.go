package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/doctrack/doctrack/pkg/middleware"
)

type claimsToken map[string]interface{}

func (t claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier decodes JWT payloads WITHOUT checking signatures. Only
// for local and integration setups, behind an explicit config flag.
type InsecureVerifier struct{}

func NewInsecureVerifier() *InsecureVerifier { return &InsecureVerifier{} }

func (v *InsecureVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return nil, errors.New("invalid token format")
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, err
	}
	var claims claimsToken
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, err
	}
	if s, _ := claims["sub"].(string); s == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
