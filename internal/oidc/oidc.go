// Package oidc verifies tokens issued by an external OpenID Connect provider
// (Keycloak in deployments) so they can be accepted next to locally issued
// access tokens.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/config"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Issuer returns the realm issuer URL for a Keycloak configuration. When no
// realm is set the URL is assumed to already point at the realm.
func Issuer(kc config.KeycloakConfig) string {
	base := strings.TrimRight(kc.URL, "/")
	if kc.Realm == "" {
		return base
	}
	return base + "/realms/" + kc.Realm
}

// NewKeycloakVerifier returns (nil, nil) when Keycloak is not configured.
func NewKeycloakVerifier(ctx context.Context, kc config.KeycloakConfig) (*Verifier, error) {
	if kc.URL == "" || kc.ClientID == "" {
		return nil, nil
	}
	return NewVerifier(ctx, Issuer(kc), kc.ClientID)
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []middleware.Verifier

func (ch Chain) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	var errs []error
	for _, v := range ch {
		if v == nil {
			continue
		}
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errors.Join(errs...)
}
