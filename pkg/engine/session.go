// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/ory/fosite"
	"github.com/ory/fosite/handler/oauth2"
	"github.com/ory/fosite/token/jwt"
)

// Claim keys stamped into JWT access tokens.
const (
	// ClientIDClaimKey identifies the client the token was issued to.
	ClientIDClaimKey = "client_id"

	// AuthorizedPartyClaimKey is the OIDC azp claim.
	AuthorizedPartyClaimKey = "azp"
)

// Session is the fosite session used by every flow of the mock provider.
// It wraps fosite's JWT session so access tokens are minted as JWTs carrying
// the subject and client claims.
type Session struct {
	*oauth2.JWTSession
}

// NewSession creates a session for the given subject and client.
// Either value may be empty: token-endpoint handlers pass an empty session as
// a deserialization template and fosite restores the stored session over it.
func NewSession(subject, clientID string) *Session {
	claims := &jwt.JWTClaims{
		Subject: subject,
		Extra:   map[string]any{},
	}

	if clientID != "" {
		claims.Extra[ClientIDClaimKey] = clientID
		claims.Extra[AuthorizedPartyClaimKey] = clientID
	}

	return &Session{
		JWTSession: &oauth2.JWTSession{
			JWTClaims: claims,
			JWTHeader: &jwt.Headers{
				Extra: map[string]any{},
			},
			Subject: subject,
		},
	}
}

// BindSubject attributes the session to a subject after the fact. Used by the
// client credentials flow, where the subject (the client's own identifier) is
// only known once the client has authenticated.
func (s *Session) BindSubject(subject, clientID string) {
	s.Subject = subject
	if s.JWTClaims == nil {
		s.JWTClaims = &jwt.JWTClaims{Extra: map[string]any{}}
	}
	s.JWTClaims.Subject = subject
	if s.JWTClaims.Extra == nil {
		s.JWTClaims.Extra = map[string]any{}
	}
	if clientID != "" {
		s.JWTClaims.Extra[ClientIDClaimKey] = clientID
		s.JWTClaims.Extra[AuthorizedPartyClaimKey] = clientID
	}
}

// Clone implements fosite.Session, preserving the concrete Session type so
// sessions restored from storage keep their claims accessible.
func (s *Session) Clone() fosite.Session {
	if s == nil {
		return nil
	}
	inner, _ := s.JWTSession.Clone().(*oauth2.JWTSession)
	return &Session{JWTSession: inner}
}
