// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Issuers, 1)

	var public, confidential int
	for _, c := range cfg.Issuers[0].Clients {
		if c.Public {
			public++
		} else {
			confidential++
		}
	}
	assert.Equal(t, 1, public)
	assert.Equal(t, 1, confidential)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	const doc = `
address: "localhost:0"
debug: true
issuers:
  - name: alpha
    access_token_lifespan: 30m
    clients:
      - id: LocalClient
        secret: SecretSecret
        redirect_uris:
          - http://localhost:8021/endpoint
        scopes: [openid, default-scope]
        grant_types: [authorization_code, client_credentials]
  - name: beta
    clients:
      - id: PublicClient
        public: true
        redirect_uris:
          - http://localhost:8021/endpoint
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:0", cfg.Address)
	assert.True(t, cfg.Debug)
	require.Len(t, cfg.Issuers, 2)
	assert.Equal(t, 30*time.Minute, cfg.Issuers[0].AccessTokenLifespan)
	assert.Equal(t, "LocalClient", cfg.Issuers[0].Clients[0].ID)
	assert.True(t, cfg.Issuers[1].Clients[0].Public)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config { return Default() }

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{
			name:   "empty address",
			mutate: func(c *Config) { c.Address = "" },
		},
		{
			name:   "no issuers",
			mutate: func(c *Config) { c.Issuers = nil },
		},
		{
			name: "unnamed issuer",
			mutate: func(c *Config) {
				c.Issuers[0].Name = ""
			},
		},
		{
			name: "duplicate issuer",
			mutate: func(c *Config) {
				c.Issuers = append(c.Issuers, c.Issuers[0])
			},
		},
		{
			name: "client without id",
			mutate: func(c *Config) {
				c.Issuers[0].Clients[0].ID = ""
			},
		},
		{
			name: "duplicate client id",
			mutate: func(c *Config) {
				c.Issuers[0].Clients[1] = c.Issuers[0].Clients[0]
			},
		},
		{
			name: "public client with secret",
			mutate: func(c *Config) {
				c.Issuers[0].Clients[1].Secret = "nope"
			},
		},
		{
			name: "confidential client without secret",
			mutate: func(c *Config) {
				c.Issuers[0].Clients[0].Secret = ""
			},
		},
		{
			name: "invalid redirect uri",
			mutate: func(c *Config) {
				c.Issuers[0].Clients[0].RedirectURIs = []string{"::not a uri"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
