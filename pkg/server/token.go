// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ory/fosite"

	"github.com/mockidp/mockidp/pkg/engine"
	"github.com/mockidp/mockidp/pkg/tenant"
)

// token dispatches a token request to the right composition. Client
// credentials requests get the machine-grant composition and a terminal
// response; every other grant runs the generic composition and its successful
// response is amended with a signed identity assertion.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "issuer")
	t, err := h.registry.Resolve(name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(webError{
			Code:        "invalid_request",
			Description: "malformed request body",
		})
		return
	}

	reqctx := engine.ContextFromRequest(r)

	err = t.WithEngine(func(e *tenant.Engine) error {
		if isClientCredentials(r.PostForm["grant_type"]) {
			comp := engine.Compose(e, engine.GrantClient(), reqctx, h.logger)
			comp.ClientCredentials(r.Context(), w, r)
			return nil
		}

		comp := engine.Compose(e, engine.GrantAs(engine.PlaceholderSubject), reqctx, h.logger)

		// Buffer the engine's response so a successful exchange can be
		// amended with an identity assertion before anything reaches the
		// client. Error responses flush through untouched.
		buf := newResponseBuffer()
		ar, ok := comp.Token(r.Context(), buf, r)
		if ok {
			if err := h.amendIDToken(buf, r, t, e, name, ar); err != nil {
				return err
			}
		}

		buf.flushTo(w)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
	}
}

// isClientCredentials reports whether the request is unambiguously a client
// credentials grant. A repeated grant_type parameter is not dispatched here;
// the protocol engine rejects it instead.
func isClientCredentials(grantTypes []string) bool {
	return len(grantTypes) == 1 && grantTypes[0] == "client_credentials"
}

// amendIDToken rewrites a buffered token response to carry a freshly signed
// identity assertion. Responses without a string access_token field, or with
// bodies that are not JSON objects, pass through byte for byte. Amendment
// failures surface as request-level errors; the underlying grant side effects
// (consumed code, stored tokens) are not rolled back, which is flagged in the
// log.
func (h *Handler) amendIDToken(
	buf *responseBuffer,
	r *http.Request,
	t *tenant.Tenant,
	e *tenant.Engine,
	name string,
	ar fosite.AccessRequester,
) error {
	var payload map[string]any
	if err := json.Unmarshal(buf.body.Bytes(), &payload); err != nil {
		return nil
	}
	if _, ok := payload["access_token"].(string); !ok {
		return nil
	}

	issuerURL, err := h.registry.IssuerURL(r, name)
	if err != nil {
		h.logger.Error("token response not amended, grant side effects stand",
			"issuer", name, "error", err)
		return fmt.Errorf("failed to resolve issuer URL: %w", err)
	}

	subject := engine.PlaceholderSubject
	if sess := ar.GetSession(); sess != nil && sess.GetSubject() != "" {
		subject = sess.GetSubject()
	}
	clientID := ar.GetClient().GetID()

	now := time.Now()
	idToken, err := t.Keys().SignIDToken(tenant.IDTokenClaims{
		Issuer:          issuerURL.String(),
		Subject:         subject,
		Audience:        []string{clientID},
		AuthorizedParty: clientID,
		IssuedAt:        now,
		Expiry:          now.Add(e.Config.AccessTokenLifespan),
		ID:              uuid.NewString(),
	})
	if err != nil {
		h.logger.Error("token response not amended, grant side effects stand",
			"issuer", name, "error", err)
		return fmt.Errorf("failed to mint identity assertion: %w", err)
	}

	payload["id_token"] = idToken

	amended, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize amended token response: %w", err)
	}
	buf.body.Reset()
	buf.body.Write(amended)
	return nil
}

// responseBuffer captures a handler's response in memory so it can be
// inspected and rewritten before flushing to the real writer.
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

var _ http.ResponseWriter = (*responseBuffer)(nil)

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (b *responseBuffer) Header() http.Header {
	return b.header
}

func (b *responseBuffer) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// flushTo replays the buffered response. Content-Length is dropped because
// amendment may have changed the body size; net/http recomputes it.
func (b *responseBuffer) flushTo(w http.ResponseWriter) {
	for key, values := range b.header {
		if key == "Content-Length" {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if b.status != 0 {
		w.WriteHeader(b.status)
	}
	_, _ = w.Write(b.body.Bytes())
}
