// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine composes a tenant's stored OAuth2 protocol engine with
// request-scoped policy for the duration of one operation. A composition
// borrows the engine's registrar, authorizer and token issuer; it never
// copies them, so side effects (codes consumed, tokens minted) are visible to
// subsequent requests against the same tenant.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ory/fosite"

	"github.com/mockidp/mockidp/pkg/tenant"
)

// Composition is the transient composed endpoint for one request: the
// tenant's engine plus the consent policy and connection-derived request
// context chosen for this operation. Callers must hold the tenant's engine
// lock for the composition's lifetime.
type Composition struct {
	engine *tenant.Engine
	policy ConsentPolicy
	reqctx *RequestContext
	logger *slog.Logger
}

// Compose builds the transient composed endpoint. The engine is borrowed,
// not cloned; the policy and request context live only as long as the
// returned composition.
func Compose(e *tenant.Engine, policy ConsentPolicy, reqctx *RequestContext, logger *slog.Logger) *Composition {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composition{
		engine: e,
		policy: policy,
		reqctx: reqctx,
		logger: logger,
	}
}

// Authorize runs the authorization endpoint operation. The consent decision
// is routed to the composed policy; everything else (client lookup, redirect
// validation, code issuance) runs against the tenant's stored engine.
func (c *Composition) Authorize(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	provider := c.engine.Provider

	ar, err := provider.NewAuthorizeRequest(ctx, r)
	if err != nil {
		c.logger.Debug("authorize request rejected", "error", err)
		provider.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	consent := c.policy.Decide(r, ar)
	if !consent.Authorized {
		provider.WriteAuthorizeError(ctx, w, ar,
			fosite.ErrAccessDenied.WithHint("The resource owner denied the request."))
		return
	}

	// The mock grants every requested scope; scope narrowing is a consent-UI
	// concern this double does not simulate.
	for _, scope := range ar.GetRequestedScopes() {
		ar.GrantScope(scope)
	}

	sess := NewSession(consent.Subject, ar.GetClient().GetID())
	c.stampExpirations(sess)

	response, err := provider.NewAuthorizeResponse(ctx, ar, sess)
	if err != nil {
		c.logger.Debug("failed to build authorize response", "error", err)
		provider.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	provider.WriteAuthorizeResponse(ctx, w, ar, response)
}

// Token runs the generic token operation (authorization code exchange and
// refresh). The subject for the issued tokens comes from the stored
// authorization session; the composed policy only supplies a fallback for
// sessions that carry none. Returns the access requester and true when a
// successful response was written to w; on protocol errors the engine's own
// error response is written and false is returned.
func (c *Composition) Token(ctx context.Context, w http.ResponseWriter, r *http.Request) (fosite.AccessRequester, bool) {
	provider := c.engine.Provider

	// Empty template session; fosite restores the stored session (subject,
	// client claims) from the presented code or refresh token.
	sess := NewSession("", "")

	ar, err := provider.NewAccessRequest(ctx, r, sess)
	if err != nil {
		c.logger.Debug("access request rejected", "error", err)
		provider.WriteAccessError(ctx, w, ar, err)
		return nil, false
	}

	// Machine grants have their own operation; one that slips in here
	// (e.g. via a repeated grant_type parameter, of which fosite reads only
	// the first) would otherwise be issued and then amended with an
	// identity assertion.
	if ar.GetGrantTypes().Has("client_credentials") {
		provider.WriteAccessError(ctx, w, ar,
			fosite.ErrInvalidRequest.WithHint("The client_credentials grant cannot be combined with other grant types."))
		return nil, false
	}

	consent := c.policy.Decide(r, ar)
	if !consent.Authorized {
		provider.WriteAccessError(ctx, w, ar,
			fosite.ErrAccessDenied.WithHint("The resource owner denied the request."))
		return nil, false
	}

	if s, ok := ar.GetSession().(*Session); ok && s.GetSubject() == "" {
		s.BindSubject(consent.Subject, ar.GetClient().GetID())
	}

	c.observe("token", ar)

	response, err := provider.NewAccessResponse(ctx, ar)
	if err != nil {
		c.logger.Debug("failed to build access response", "error", err)
		provider.WriteAccessError(ctx, w, ar, err)
		return nil, false
	}

	provider.WriteAccessResponse(ctx, w, ar, response)
	return ar, true
}

// ClientCredentials runs the dedicated client credentials operation. The
// grant is attributed to the requesting client's own identifier, and that
// identifier is echoed in the response body for clients that expect it there.
// The response is terminal: no identity assertion applies to machine grants.
func (c *Composition) ClientCredentials(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	provider := c.engine.Provider

	sess := NewSession("", "")

	ar, err := provider.NewAccessRequest(ctx, r, sess)
	if err != nil {
		c.logger.Debug("client credentials request rejected", "error", err)
		provider.WriteAccessError(ctx, w, ar, err)
		return
	}

	consent := c.policy.Decide(r, ar)
	if !consent.Authorized {
		provider.WriteAccessError(ctx, w, ar,
			fosite.ErrAccessDenied.WithHint("The request was not authorized."))
		return
	}

	clientID := ar.GetClient().GetID()
	sess.BindSubject(consent.Subject, clientID)

	c.observe("client_credentials", ar)

	response, err := provider.NewAccessResponse(ctx, ar)
	if err != nil {
		c.logger.Debug("failed to build client credentials response", "error", err)
		provider.WriteAccessError(ctx, w, ar, err)
		return
	}

	response.SetExtra(ClientIDClaimKey, clientID)

	provider.WriteAccessResponse(ctx, w, ar, response)
}

// observe notifies the attached request context that tokens are being issued.
func (c *Composition) observe(operation string, ar fosite.AccessRequester) {
	if c.reqctx == nil {
		return
	}
	c.logger.Debug("issuing tokens",
		"operation", operation,
		"client_id", ar.GetClient().GetID(),
		"connection", c.reqctx,
	)
}

func (c *Composition) stampExpirations(sess *Session) {
	now := time.Now()
	cfg := c.engine.Config
	sess.SetExpiresAt(fosite.AuthorizeCode, now.Add(cfg.AuthorizeCodeLifespan))
	sess.SetExpiresAt(fosite.AccessToken, now.Add(cfg.AccessTokenLifespan))
	sess.SetExpiresAt(fosite.RefreshToken, now.Add(cfg.RefreshTokenLifespan))
}
