// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ory/fosite"
)

// ErrNotFound is returned when a stored session or client does not exist.
var ErrNotFound = errors.New("not found")

// Default TTLs applied when a requester carries no explicit expiration.
const (
	defaultAuthCodeTTL        = 10 * time.Minute
	defaultAccessTokenTTL     = time.Hour
	defaultRefreshTokenTTL    = 24 * time.Hour
	defaultInvalidatedCodeTTL = time.Hour
)

// timedEntry wraps a value with its expiration time.
type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *timedEntry[T]) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// Store holds one issuer's protocol engine state: the client registrar and
// every token/code session fosite needs for the authorization code, refresh
// and client credentials grants. It is an in-memory implementation of the
// fosite storage interfaces; nothing survives a restart.
//
// Token maps are keyed by "signature" (the cryptographic token identifier)
// for O(1) lookup. The full fosite.Requester is stored, not just the token,
// because fosite needs the original authorization context (client, scopes,
// session) for validation. Expired entries are dropped lazily on read; a
// test double has no need for a background sweeper.
type Store struct {
	mu sync.RWMutex

	// clients maps client_id -> Client (fosite.ClientManager).
	clients map[string]fosite.Client

	// authCodes maps authorization code -> Requester. Codes are one-time-use;
	// invalidatedCodes tracks used codes so a replay surfaces
	// ErrInvalidatedAuthorizeCode rather than plain not-found.
	authCodes        map[string]*timedEntry[fosite.Requester]
	invalidatedCodes map[string]*timedEntry[bool]

	// accessTokens and refreshTokens map token signature -> Requester.
	accessTokens  map[string]*timedEntry[fosite.Requester]
	refreshTokens map[string]*timedEntry[fosite.Requester]

	// pkceRequests maps code signature -> Requester with the PKCE challenge.
	pkceRequests map[string]*timedEntry[fosite.Requester]

	// clientAssertionJWTs tracks used private_key_jwt JTIs.
	clientAssertionJWTs map[string]time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		clients:             make(map[string]fosite.Client),
		authCodes:           make(map[string]*timedEntry[fosite.Requester]),
		invalidatedCodes:    make(map[string]*timedEntry[bool]),
		accessTokens:        make(map[string]*timedEntry[fosite.Requester]),
		refreshTokens:       make(map[string]*timedEntry[fosite.Requester]),
		pkceRequests:        make(map[string]*timedEntry[fosite.Requester]),
		clientAssertionJWTs: make(map[string]time.Time),
	}
}

// RegisterClient adds a client to the registrar. Registering an existing ID
// replaces the previous client.
func (s *Store) RegisterClient(_ context.Context, client fosite.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.GetID()] = client
	return nil
}

// GetClient loads the client by its ID (fosite.ClientManager).
func (s *Store) GetClient(_ context.Context, id string) (fosite.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("Client not found"))
	}
	return client, nil
}

// ClientAssertionJWTValid returns an error if the JTI is already known.
func (s *Store) ClientAssertionJWTValid(_ context.Context, jti string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if exp, ok := s.clientAssertionJWTs[jti]; ok && time.Now().Before(exp) {
		return fosite.ErrJTIKnown
	}
	return nil
}

// SetClientAssertionJWT marks a JTI as used until exp, dropping expired entries.
func (s *Store) SetClientAssertionJWT(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, v := range s.clientAssertionJWTs {
		if now.After(v) {
			delete(s.clientAssertionJWTs, k)
		}
	}

	s.clientAssertionJWTs[jti] = exp
	return nil
}

// CreateAuthorizeCodeSession stores the request for an authorization code
// (oauth2.AuthorizeCodeStorage).
func (s *Store) CreateAuthorizeCodeSession(_ context.Context, code string, request fosite.Requester) error {
	if code == "" {
		return fosite.ErrInvalidRequest.WithHint("authorization code cannot be empty")
	}
	if request == nil {
		return fosite.ErrInvalidRequest.WithHint("request cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.authCodes[code] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expirationFor(request, fosite.AuthorizeCode, defaultAuthCodeTTL),
	}
	return nil
}

// GetAuthorizeCodeSession retrieves the request for a code. A code that has
// already been used returns the request together with
// ErrInvalidatedAuthorizeCode, as fosite requires.
func (s *Store) GetAuthorizeCodeSession(_ context.Context, code string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.authCodes[code]
	if !ok || entry.expired() {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("Authorization code not found"))
	}

	if s.invalidatedCodes[code] != nil {
		return entry.value, fosite.ErrInvalidatedAuthorizeCode
	}

	return entry.value, nil
}

// InvalidateAuthorizeCodeSession marks an authorization code as used.
func (s *Store) InvalidateAuthorizeCodeSession(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authCodes[code]; !ok {
		return fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("Authorization code not found"))
	}

	s.invalidatedCodes[code] = &timedEntry[bool]{
		value:     true,
		expiresAt: time.Now().Add(defaultInvalidatedCodeTTL),
	}
	return nil
}

// CreateAccessTokenSession stores an access token session (oauth2.AccessTokenStorage).
func (s *Store) CreateAccessTokenSession(_ context.Context, signature string, request fosite.Requester) error {
	if signature == "" {
		return fosite.ErrInvalidRequest.WithHint("access token signature cannot be empty")
	}
	if request == nil {
		return fosite.ErrInvalidRequest.WithHint("request cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessTokens[signature] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expirationFor(request, fosite.AccessToken, defaultAccessTokenTTL),
	}
	return nil
}

// GetAccessTokenSession retrieves an access token session by its signature.
func (s *Store) GetAccessTokenSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accessTokens[signature]
	if !ok || entry.expired() {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("Access token not found"))
	}
	return entry.value, nil
}

// DeleteAccessTokenSession removes an access token session.
func (s *Store) DeleteAccessTokenSession(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[signature]; !ok {
		return fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("Access token not found"))
	}
	delete(s.accessTokens, signature)
	return nil
}

// CreateRefreshTokenSession stores a refresh token session
// (oauth2.RefreshTokenStorage). The access token signature linking refresh to
// access tokens is ignored; rotation scans by request ID instead.
func (s *Store) CreateRefreshTokenSession(_ context.Context, signature string, _ string, request fosite.Requester) error {
	if signature == "" {
		return fosite.ErrInvalidRequest.WithHint("refresh token signature cannot be empty")
	}
	if request == nil {
		return fosite.ErrInvalidRequest.WithHint("request cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[signature] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expirationFor(request, fosite.RefreshToken, defaultRefreshTokenTTL),
	}
	return nil
}

// GetRefreshTokenSession retrieves a refresh token session by its signature.
func (s *Store) GetRefreshTokenSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.refreshTokens[signature]
	if !ok || entry.expired() {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("Refresh token not found"))
	}
	return entry.value, nil
}

// DeleteRefreshTokenSession removes a refresh token session.
func (s *Store) DeleteRefreshTokenSession(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[signature]; !ok {
		return fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("Refresh token not found"))
	}
	delete(s.refreshTokens, signature)
	return nil
}

// RotateRefreshToken invalidates a refresh token and the access tokens issued
// with it. Called by fosite during refresh token rotation.
func (s *Store) RotateRefreshToken(_ context.Context, requestID string, refreshTokenSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refreshTokens, refreshTokenSignature)

	for sig, entry := range s.accessTokens {
		if entry.value.GetID() == requestID {
			delete(s.accessTokens, sig)
		}
	}

	return nil
}

// RevokeAccessToken removes all access tokens issued for a request ID
// (oauth2.TokenRevocationStorage).
func (s *Store) RevokeAccessToken(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sig, entry := range s.accessTokens {
		if entry.value.GetID() == requestID {
			delete(s.accessTokens, sig)
		}
	}
	return nil
}

// RevokeRefreshToken removes all refresh tokens issued for a request ID.
func (s *Store) RevokeRefreshToken(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sig, entry := range s.refreshTokens {
		if entry.value.GetID() == requestID {
			delete(s.refreshTokens, sig)
		}
	}
	return nil
}

// RevokeRefreshTokenMaybeGracePeriod revokes immediately; grace periods are
// not supported here.
func (s *Store) RevokeRefreshTokenMaybeGracePeriod(ctx context.Context, requestID string, _ string) error {
	return s.RevokeRefreshToken(ctx, requestID)
}

// CreatePKCERequestSession stores a PKCE request session (pkce.PKCERequestStorage).
func (s *Store) CreatePKCERequestSession(_ context.Context, signature string, request fosite.Requester) error {
	if signature == "" {
		return fosite.ErrInvalidRequest.WithHint("PKCE signature cannot be empty")
	}
	if request == nil {
		return fosite.ErrInvalidRequest.WithHint("request cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pkceRequests[signature] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expirationFor(request, fosite.AuthorizeCode, defaultAuthCodeTTL),
	}
	return nil
}

// GetPKCERequestSession retrieves a PKCE request session by its signature.
func (s *Store) GetPKCERequestSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.pkceRequests[signature]
	if !ok || entry.expired() {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("PKCE request not found"))
	}
	return entry.value, nil
}

// DeletePKCERequestSession removes a PKCE request session.
func (s *Store) DeletePKCERequestSession(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pkceRequests[signature]; !ok {
		return fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint("PKCE request not found"))
	}
	delete(s.pkceRequests, signature)
	return nil
}

// expirationFor reads the expiration for a token type from the requester's
// session, falling back to a default TTL when the session carries none.
func expirationFor(request fosite.Requester, tokenType fosite.TokenType, fallback time.Duration) time.Time {
	if sess := request.GetSession(); sess != nil {
		if exp := sess.GetExpiresAt(tokenType); !exp.IsZero() {
			return exp
		}
	}
	return time.Now().Add(fallback)
}
