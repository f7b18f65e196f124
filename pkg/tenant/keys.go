// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	josev3 "github.com/go-jose/go-jose/v3"
)

// ErrInvalidKey is returned when a signing key is invalid or cannot be parsed.
var ErrInvalidKey = fmt.Errorf("invalid signing key")

// mockKeyBits is the RSA modulus size for generated signing keys. 2048 keeps
// startup fast while remaining verifiable by standard OIDC client libraries.
const mockKeyBits = 2048

// KeyMaterial owns the asymmetric signing key for one issuer's identity
// assertions. It is immutable after construction and safe for concurrent use;
// the private key never leaves this type except through signing.
type KeyMaterial struct {
	signer crypto.Signer
	jwk    jose.JSONWebKey
}

// GenerateKeyMaterial creates fresh RSA key material for an issuer.
// This is the default for a test double: every process start gets new keys.
func GenerateKeyMaterial() (*KeyMaterial, error) {
	key, err := rsa.GenerateKey(rand.Reader, mockKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return newKeyMaterial(key)
}

// LoadKeyMaterial loads a private key from a PEM file.
// Supports RSA (PKCS1 and PKCS8) and ECDSA (SEC 1 and PKCS8) formats.
func LoadKeyMaterial(keyPath string) (*KeyMaterial, error) {
	keyPEM, err := os.ReadFile(keyPath) // #nosec G304 - keyPath comes from the operator's config file
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	signer, err := parseSigner(keyPEM)
	if err != nil {
		return nil, err
	}
	return newKeyMaterial(signer)
}

func parseSigner(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	// Try PKCS1 first (RSA only)
	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return rsaKey, nil
	}

	// Try EC private key (SEC 1, ASN.1 DER form)
	if ecKey, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return ecKey, nil
	}

	// Try PKCS8 (supports both RSA and EC)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: key does not implement crypto.Signer", ErrInvalidKey)
	}
	return signer, nil
}

func newKeyMaterial(signer crypto.Signer) (*KeyMaterial, error) {
	kid, err := deriveKeyID(signer)
	if err != nil {
		return nil, err
	}

	return &KeyMaterial{
		signer: signer,
		jwk: jose.JSONWebKey{
			Key:       signer,
			KeyID:     kid,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		},
	}, nil
}

// deriveKeyID computes a key ID from the public key using RFC 7638 JWK Thumbprint.
// The thumbprint is computed as base64url(SHA-256(JWK canonical form)).
func deriveKeyID(key crypto.Signer) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}

	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// KeyID returns the RFC 7638 thumbprint key ID.
func (k *KeyMaterial) KeyID() string {
	return k.jwk.KeyID
}

// SigningAlgorithm returns the JWS algorithm identity assertions are signed
// with, as advertised in discovery.
func (k *KeyMaterial) SigningAlgorithm() string {
	return k.jwk.Algorithm
}

// PublicJWKS returns the key set containing only public key material.
// This is what the JWKS endpoint serves; private keys never appear here.
func (k *KeyMaterial) PublicJWKS() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{k.jwk.Public()},
	}
}

// FositeKey returns the signing key as a go-jose/v3 JWK.
// Fosite v0.49 still depends on go-jose/v3, so the engine's JWT strategy needs
// the v3 representation to include the kid in access token headers.
func (k *KeyMaterial) FositeKey() *josev3.JSONWebKey {
	return &josev3.JSONWebKey{
		Key:       k.jwk.Key,
		KeyID:     k.jwk.KeyID,
		Algorithm: k.jwk.Algorithm,
		Use:       k.jwk.Use,
	}
}

// IDTokenClaims are the claims bound into a minted identity assertion.
type IDTokenClaims struct {
	// Issuer is the externally resolved issuer URL (iss claim).
	Issuer string

	// Subject is the authenticated subject (sub claim).
	Subject string

	// Audience is the client the assertion is intended for (aud claim).
	Audience []string

	// AuthorizedParty is the party the token was issued to (azp claim).
	AuthorizedParty string

	// Expiry is the exp claim.
	Expiry time.Time

	// IssuedAt is the iat claim.
	IssuedAt time.Time

	// ID is the jti claim.
	ID string
}

// SignIDToken mints a signed identity assertion with the given claims.
// The token is signed with RS256 and carries this key's ID in its header.
func (k *KeyMaterial) SignIDToken(claims IDTokenClaims) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: k.jwk},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create token signer: %w", err)
	}

	std := jwt.Claims{
		Issuer:   claims.Issuer,
		Subject:  claims.Subject,
		Audience: jwt.Audience(claims.Audience),
		Expiry:   jwt.NewNumericDate(claims.Expiry),
		IssuedAt: jwt.NewNumericDate(claims.IssuedAt),
		ID:       claims.ID,
	}

	extra := map[string]any{}
	if claims.AuthorizedParty != "" {
		extra["azp"] = claims.AuthorizedParty
	}

	token, err := jwt.Signed(signer).Claims(std).Claims(extra).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign identity assertion: %w", err)
	}
	return token, nil
}
