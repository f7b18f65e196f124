// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/ory/fosite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(id string) *fosite.Request {
	r := fosite.NewRequest()
	r.ID = id
	r.Client = &fosite.DefaultClient{ID: "test-client"}
	r.Session = &fosite.DefaultSession{}
	return r
}

func TestStore_Clients(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	client := &fosite.DefaultClient{ID: "c1"}
	require.NoError(t, store.RegisterClient(ctx, client))

	got, err := store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.GetID())

	_, err = store.GetClient(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, fosite.ErrNotFound)
}

func TestStore_AuthorizeCodeLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	req := newTestRequest("req-1")

	require.NoError(t, store.CreateAuthorizeCodeSession(ctx, "code-1", req))

	got, err := store.GetAuthorizeCodeSession(ctx, "code-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.GetID())

	require.NoError(t, store.InvalidateAuthorizeCodeSession(ctx, "code-1"))

	// A used code must still return the requester so fosite can revoke the
	// tokens minted from it.
	got, err = store.GetAuthorizeCodeSession(ctx, "code-1", nil)
	require.ErrorIs(t, err, fosite.ErrInvalidatedAuthorizeCode)
	require.NotNil(t, got)
	assert.Equal(t, "req-1", got.GetID())
}

func TestStore_AuthorizeCodeValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	require.Error(t, store.CreateAuthorizeCodeSession(ctx, "", newTestRequest("r")))
	require.Error(t, store.CreateAuthorizeCodeSession(ctx, "code", nil))

	_, err := store.GetAuthorizeCodeSession(ctx, "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, store.InvalidateAuthorizeCodeSession(ctx, "missing"))
}

func TestStore_AccessTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	req := newTestRequest("req-1")

	require.NoError(t, store.CreateAccessTokenSession(ctx, "sig-1", req))

	got, err := store.GetAccessTokenSession(ctx, "sig-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.GetID())

	require.NoError(t, store.DeleteAccessTokenSession(ctx, "sig-1"))
	_, err = store.GetAccessTokenSession(ctx, "sig-1", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ExpiredEntriesDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	req := newTestRequest("req-1")
	req.Session.SetExpiresAt(fosite.AccessToken, time.Now().Add(-time.Minute))

	require.NoError(t, store.CreateAccessTokenSession(ctx, "sig-1", req))

	_, err := store.GetAccessTokenSession(ctx, "sig-1", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RefreshTokenRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	req := newTestRequest("req-1")

	require.NoError(t, store.CreateRefreshTokenSession(ctx, "refresh-1", "", req))
	require.NoError(t, store.CreateAccessTokenSession(ctx, "access-1", req))

	// Rotation removes the refresh token and every access token from the
	// same request.
	require.NoError(t, store.RotateRefreshToken(ctx, "req-1", "refresh-1"))

	_, err := store.GetRefreshTokenSession(ctx, "refresh-1", nil)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetAccessTokenSession(ctx, "access-1", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RevokeByRequestID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	reqA := newTestRequest("req-a")
	reqB := newTestRequest("req-b")
	require.NoError(t, store.CreateAccessTokenSession(ctx, "access-a", reqA))
	require.NoError(t, store.CreateAccessTokenSession(ctx, "access-b", reqB))
	require.NoError(t, store.CreateRefreshTokenSession(ctx, "refresh-a", "", reqA))

	require.NoError(t, store.RevokeAccessToken(ctx, "req-a"))
	require.NoError(t, store.RevokeRefreshToken(ctx, "req-a"))

	_, err := store.GetAccessTokenSession(ctx, "access-a", nil)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetRefreshTokenSession(ctx, "refresh-a", nil)
	require.ErrorIs(t, err, ErrNotFound)

	// Unrelated request untouched.
	_, err = store.GetAccessTokenSession(ctx, "access-b", nil)
	require.NoError(t, err)
}

func TestStore_PKCESessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	req := newTestRequest("req-1")

	require.NoError(t, store.CreatePKCERequestSession(ctx, "sig-1", req))

	got, err := store.GetPKCERequestSession(ctx, "sig-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.GetID())

	require.NoError(t, store.DeletePKCERequestSession(ctx, "sig-1"))
	_, err = store.GetPKCERequestSession(ctx, "sig-1", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ClientAssertionJWTs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.ClientAssertionJWTValid(ctx, "jti-1"))
	require.NoError(t, store.SetClientAssertionJWT(ctx, "jti-1", time.Now().Add(time.Hour)))
	require.ErrorIs(t, store.ClientAssertionJWTValid(ctx, "jti-1"), fosite.ErrJTIKnown)

	// Expired JTIs become valid again.
	require.NoError(t, store.SetClientAssertionJWT(ctx, "jti-2", time.Now().Add(-time.Hour)))
	require.NoError(t, store.ClientAssertionJWTValid(ctx, "jti-2"))
}
