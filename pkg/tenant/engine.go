// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"
)

// Default token lifespans for a freshly configured issuer.
const (
	DefaultAccessTokenLifespan  = time.Hour
	DefaultRefreshTokenLifespan = 24 * time.Hour
	DefaultAuthCodeLifespan     = 10 * time.Minute
)

// hmacSecretLen is the length of the generated global HMAC secret.
// Fosite requires at least 32 bytes.
const hmacSecretLen = 32

// EngineConfig carries the per-issuer protocol engine settings.
type EngineConfig struct {
	// Issuer is the issuer identifier stamped into JWT access tokens. The
	// identity assertion's iss claim is resolved per request instead, so this
	// is a best-effort startup value.
	Issuer string

	// HMACSecret signs authorization codes and refresh tokens. Generated
	// when empty; a test double has no reason to persist it.
	HMACSecret []byte

	AccessTokenLifespan  time.Duration
	RefreshTokenLifespan time.Duration
	AuthCodeLifespan     time.Duration
}

// Engine is one issuer's OAuth2 protocol engine: the fosite provider together
// with the configuration and storage it runs over. The containing Tenant
// serializes mutating access; Engine itself adds no locking.
type Engine struct {
	Config   *fosite.Config
	Store    *Store
	Provider fosite.OAuth2Provider
}

// NewEngine assembles a protocol engine for one issuer.
func NewEngine(keys *KeyMaterial, cfg EngineConfig) (*Engine, error) {
	if keys == nil {
		return nil, fmt.Errorf("key material is required")
	}

	if cfg.AccessTokenLifespan == 0 {
		cfg.AccessTokenLifespan = DefaultAccessTokenLifespan
	}
	if cfg.RefreshTokenLifespan == 0 {
		cfg.RefreshTokenLifespan = DefaultRefreshTokenLifespan
	}
	if cfg.AuthCodeLifespan == 0 {
		cfg.AuthCodeLifespan = DefaultAuthCodeLifespan
	}
	if len(cfg.HMACSecret) == 0 {
		secret := make([]byte, hmacSecretLen)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate HMAC secret: %w", err)
		}
		cfg.HMACSecret = secret
	}

	fositeConfig := &fosite.Config{
		AccessTokenIssuer:           cfg.Issuer,
		AccessTokenLifespan:         cfg.AccessTokenLifespan,
		RefreshTokenLifespan:        cfg.RefreshTokenLifespan,
		AuthorizeCodeLifespan:       cfg.AuthCodeLifespan,
		GlobalSecret:                cfg.HMACSecret,
		EnforcePKCEForPublicClients: true,
		// "offline" is fosite's default; "offline_access" is what OIDC
		// clients actually request.
		RefreshTokenScopes: []string{"offline", "offline_access"},
	}

	store := NewStore()

	return &Engine{
		Config:   fositeConfig,
		Store:    store,
		Provider: BuildProvider(fositeConfig, keys, store),
	}, nil
}

// BuildProvider wires a fosite OAuth2 provider over the given storage.
// Exposed separately so tests can interpose on storage (e.g. to widen race
// windows) while reusing the engine's configuration.
//
// The JWT strategy signs access tokens; authorization codes and refresh
// tokens use the HMAC strategy derived from the global secret.
func BuildProvider(config *fosite.Config, keys *KeyMaterial, storage fosite.Storage) fosite.OAuth2Provider {
	// Fosite v0.49 consumes go-jose/v3 keys; hand it the v3 representation
	// so the kid makes it into access token headers.
	signingKey := keys.FositeKey()

	jwtStrategy := compose.NewOAuth2JWTStrategy(
		func(_ context.Context) (interface{}, error) { return signingKey, nil },
		compose.NewOAuth2HMACStrategy(config),
		config,
	)

	return compose.Compose(
		config,
		storage,
		&compose.CommonStrategy{CoreStrategy: jwtStrategy},
		compose.OAuth2AuthorizeExplicitFactory,     // authorization code grant
		compose.OAuth2RefreshTokenGrantFactory,     // refresh token grant
		compose.OAuth2ClientCredentialsGrantFactory, // machine-to-machine grant
		compose.OAuth2PKCEFactory,                  // PKCE for public clients
	)
}
