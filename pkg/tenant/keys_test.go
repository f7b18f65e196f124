// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyMaterial(t *testing.T) {
	t.Parallel()

	keys, err := GenerateKeyMaterial()
	require.NoError(t, err)

	assert.NotEmpty(t, keys.KeyID())
	assert.Equal(t, "RS256", keys.SigningAlgorithm())
}

func TestLoadKeyMaterial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		keyPEM  func(t *testing.T) []byte
		wantErr bool
	}{
		{
			name: "rsa pkcs1",
			keyPEM: func(t *testing.T) []byte {
				t.Helper()
				key, err := rsa.GenerateKey(rand.Reader, 2048)
				require.NoError(t, err)
				return pem.EncodeToMemory(&pem.Block{
					Type:  "RSA PRIVATE KEY",
					Bytes: x509.MarshalPKCS1PrivateKey(key),
				})
			},
		},
		{
			name: "rsa pkcs8",
			keyPEM: func(t *testing.T) []byte {
				t.Helper()
				key, err := rsa.GenerateKey(rand.Reader, 2048)
				require.NoError(t, err)
				der, err := x509.MarshalPKCS8PrivateKey(key)
				require.NoError(t, err)
				return pem.EncodeToMemory(&pem.Block{
					Type:  "PRIVATE KEY",
					Bytes: der,
				})
			},
		},
		{
			name: "ec sec1",
			keyPEM: func(t *testing.T) []byte {
				t.Helper()
				key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
				require.NoError(t, err)
				der, err := x509.MarshalECPrivateKey(key)
				require.NoError(t, err)
				return pem.EncodeToMemory(&pem.Block{
					Type:  "EC PRIVATE KEY",
					Bytes: der,
				})
			},
		},
		{
			name: "garbage",
			keyPEM: func(t *testing.T) []byte {
				t.Helper()
				return []byte("not a key")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "key.pem")
			require.NoError(t, os.WriteFile(path, tt.keyPEM(t), 0o600))

			keys, err := LoadKeyMaterial(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, keys.KeyID())
		})
	}
}

func TestLoadKeyMaterial_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadKeyMaterial(filepath.Join(t.TempDir(), "nope.pem"))
	require.Error(t, err)
}

func TestKeyID_Stable(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	a, err := newKeyMaterial(key)
	require.NoError(t, err)
	b, err := newKeyMaterial(key)
	require.NoError(t, err)

	// Same key, same RFC 7638 thumbprint.
	assert.Equal(t, a.KeyID(), b.KeyID())
}

func TestPublicJWKS_NoPrivateKeys(t *testing.T) {
	t.Parallel()

	keys, err := GenerateKeyMaterial()
	require.NoError(t, err)

	set := keys.PublicJWKS()
	require.Len(t, set.Keys, 1)

	jwk := set.Keys[0]
	assert.True(t, jwk.IsPublic())
	assert.Equal(t, keys.KeyID(), jwk.KeyID)
	assert.Equal(t, "sig", jwk.Use)

	_, isPrivate := jwk.Key.(*rsa.PrivateKey)
	assert.False(t, isPrivate)
}

func TestSignIDToken(t *testing.T) {
	t.Parallel()

	keys, err := GenerateKeyMaterial()
	require.NoError(t, err)

	now := time.Now()
	raw, err := keys.SignIDToken(IDTokenClaims{
		Issuer:          "https://idp.example/alpha",
		Subject:         "Marvin",
		Audience:        []string{"LocalClient"},
		AuthorizedParty: "LocalClient",
		IssuedAt:        now,
		Expiry:          now.Add(time.Hour),
		ID:              "jti-1",
	})
	require.NoError(t, err)

	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	require.NoError(t, err)

	require.Len(t, parsed.Headers, 1)
	assert.Equal(t, keys.KeyID(), parsed.Headers[0].KeyID)

	var std jwt.Claims
	var extra map[string]any
	require.NoError(t, parsed.Claims(keys.PublicJWKS().Keys[0], &std, &extra))

	assert.Equal(t, "https://idp.example/alpha", std.Issuer)
	assert.Equal(t, "Marvin", std.Subject)
	assert.Equal(t, jwt.Audience{"LocalClient"}, std.Audience)
	assert.Equal(t, "jti-1", std.ID)
	assert.Equal(t, "LocalClient", extra["azp"])
}

func TestSignIDToken_NoAuthorizedParty(t *testing.T) {
	t.Parallel()

	keys, err := GenerateKeyMaterial()
	require.NoError(t, err)

	now := time.Now()
	raw, err := keys.SignIDToken(IDTokenClaims{
		Issuer:   "https://idp.example/alpha",
		Subject:  "Marvin",
		IssuedAt: now,
		Expiry:   now.Add(time.Hour),
	})
	require.NoError(t, err)

	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	require.NoError(t, err)

	var extra map[string]any
	require.NoError(t, parsed.UnsafeClaimsWithoutVerification(&extra))
	assert.NotContains(t, extra, "azp")
}
