// Package oidc verifies tokens issued by the upstream identity provider.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/doctrack/doctrack/pkg/middleware"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers issuer and returns a verifier for its tokens. An
// empty clientID skips the audience check, which Keycloak access tokens
// (aud "account") need.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	cfg := &oidc.Config{ClientID: clientID, SkipClientIDCheck: clientID == ""}
	return &Verifier{verifier: provider.Verifier(cfg)}, nil
}

// Verify checks signature, issuer and expiry of raw.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
