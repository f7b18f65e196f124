// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"

	"github.com/ory/fosite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mockidp/mockidp/pkg/tenant"
)

// Materialize turns the configuration into live tenants: key material is
// loaded or generated, the protocol engine is assembled, and every configured
// client is registered. The returned tenants are ready to hand to the
// registry.
func (c *Config) Materialize(ctx context.Context) ([]*tenant.Tenant, error) {
	tenants := make([]*tenant.Tenant, 0, len(c.Issuers))

	for _, iss := range c.Issuers {
		t, err := iss.materialize(ctx)
		if err != nil {
			return nil, fmt.Errorf("issuer %q: %w", iss.Name, err)
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func (c *IssuerConfig) materialize(ctx context.Context) (*tenant.Tenant, error) {
	var (
		keys *tenant.KeyMaterial
		err  error
	)
	if c.SigningKey != "" {
		keys, err = tenant.LoadKeyMaterial(c.SigningKey)
	} else {
		keys, err = tenant.GenerateKeyMaterial()
	}
	if err != nil {
		return nil, err
	}

	engine, err := tenant.NewEngine(keys, tenant.EngineConfig{
		Issuer:               c.Name,
		AccessTokenLifespan:  c.AccessTokenLifespan,
		RefreshTokenLifespan: c.RefreshTokenLifespan,
		AuthCodeLifespan:     c.AuthCodeLifespan,
	})
	if err != nil {
		return nil, err
	}

	for _, client := range c.Clients {
		fc, err := client.fositeClient()
		if err != nil {
			return nil, err
		}
		if err := engine.Store.RegisterClient(ctx, fc); err != nil {
			return nil, fmt.Errorf("client %q: %w", client.ID, err)
		}
	}

	return tenant.New(c.Name, keys, engine)
}

// fositeClient converts the declarative client entry into the engine's client
// record. Secrets are stored as bcrypt hashes; the plaintext never leaves
// this function.
func (c *ClientConfig) fositeClient() (fosite.Client, error) {
	var hashed []byte
	if c.Secret != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(c.Secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("client %q: failed to hash secret: %w", c.ID, err)
		}
		hashed = h
	}

	grantTypes := c.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	responseTypes := c.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	return &fosite.DefaultClient{
		ID:            c.ID,
		Secret:        hashed,
		RedirectURIs:  c.RedirectURIs,
		Scopes:        c.Scopes,
		GrantTypes:    grantTypes,
		ResponseTypes: responseTypes,
		Public:        c.Public,
	}, nil
}
