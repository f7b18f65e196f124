// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the provider's YAML configuration and materializes it
// into tenants ready to serve. Configuration is read once at startup; nothing
// here is hot-reloadable.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration document.
type Config struct {
	// Address is the listen address, host:port. Port 0 picks an ephemeral
	// port; the resolved address is logged at startup.
	Address string `mapstructure:"address"`

	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`

	// Issuers are the hosted tenants. At least one is required.
	Issuers []IssuerConfig `mapstructure:"issuers"`
}

// IssuerConfig describes one hosted issuer.
type IssuerConfig struct {
	// Name is the issuer's unique path segment.
	Name string `mapstructure:"name"`

	// SigningKey is an optional path to a PEM private key. When empty the
	// issuer gets freshly generated RSA keys on every start.
	SigningKey string `mapstructure:"signing_key"`

	AccessTokenLifespan  time.Duration `mapstructure:"access_token_lifespan"`
	RefreshTokenLifespan time.Duration `mapstructure:"refresh_token_lifespan"`
	AuthCodeLifespan     time.Duration `mapstructure:"auth_code_lifespan"`

	// Clients are the OAuth2 clients registered with this issuer.
	Clients []ClientConfig `mapstructure:"clients"`
}

// ClientConfig describes one registered OAuth2 client.
type ClientConfig struct {
	ID string `mapstructure:"id"`

	// Secret is the plaintext client secret. Hashed before registration;
	// required for confidential clients, forbidden for public ones.
	Secret string `mapstructure:"secret"`

	RedirectURIs  []string `mapstructure:"redirect_uris"`
	Scopes        []string `mapstructure:"scopes"`
	GrantTypes    []string `mapstructure:"grant_types"`
	ResponseTypes []string `mapstructure:"response_types"`

	// Public marks a client without credentials. Public clients must use
	// PKCE on the authorization code grant.
	Public bool `mapstructure:"public"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no config file is
// given: a single issuer with one confidential and one public client, enough
// to exercise every supported flow out of the box.
func Default() *Config {
	return &Config{
		Address: "localhost:8020",
		Issuers: []IssuerConfig{
			{
				Name: "mock",
				Clients: []ClientConfig{
					{
						ID:            "LocalClient",
						Secret:        "SecretSecret",
						RedirectURIs:  []string{"http://localhost:8021/endpoint"},
						Scopes:        []string{"openid", "profile", "email", "offline_access", "default-scope"},
						GrantTypes:    []string{"authorization_code", "refresh_token", "client_credentials"},
						ResponseTypes: []string{"code"},
					},
					{
						ID:            "PublicClient",
						RedirectURIs:  []string{"http://localhost:8021/endpoint"},
						Scopes:        []string{"openid", "profile", "email", "offline_access", "default-scope"},
						GrantTypes:    []string{"authorization_code", "refresh_token"},
						ResponseTypes: []string{"code"},
						Public:        true,
					},
				},
			},
		},
	}
}

// Validate checks the configuration for structural errors. Duplicate issuer
// names are also rejected later by the registry; checking here gives the
// operator a config-shaped error message.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if len(c.Issuers) == 0 {
		return fmt.Errorf("at least one issuer is required")
	}

	seen := make(map[string]bool, len(c.Issuers))
	for i, iss := range c.Issuers {
		if iss.Name == "" {
			return fmt.Errorf("issuers[%d]: name is required", i)
		}
		if seen[iss.Name] {
			return fmt.Errorf("issuers[%d]: duplicate issuer name %q", i, iss.Name)
		}
		seen[iss.Name] = true

		if err := iss.validateClients(); err != nil {
			return fmt.Errorf("issuer %q: %w", iss.Name, err)
		}
	}
	return nil
}

func (c *IssuerConfig) validateClients() error {
	ids := make(map[string]bool, len(c.Clients))
	for i, client := range c.Clients {
		if client.ID == "" {
			return fmt.Errorf("clients[%d]: id is required", i)
		}
		if ids[client.ID] {
			return fmt.Errorf("clients[%d]: duplicate client id %q", i, client.ID)
		}
		ids[client.ID] = true

		if client.Public && client.Secret != "" {
			return fmt.Errorf("client %q: public clients cannot have a secret", client.ID)
		}
		if !client.Public && client.Secret == "" {
			return fmt.Errorf("client %q: confidential clients need a secret", client.ID)
		}

		for _, raw := range client.RedirectURIs {
			if _, err := url.ParseRequestURI(raw); err != nil {
				return fmt.Errorf("client %q: invalid redirect URI %q: %w", client.ID, raw, err)
			}
		}
	}
	return nil
}
