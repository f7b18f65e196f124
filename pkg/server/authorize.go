// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mockidp/mockidp/pkg/engine"
	"github.com/mockidp/mockidp/pkg/tenant"
)

// authorize handles the authorization endpoint for one tenant. Consent is
// granted automatically on behalf of the mock's single resource owner, so a
// valid request redirects back with a code immediately.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "issuer")
	t, err := h.registry.Resolve(name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	reqctx := engine.ContextFromRequest(r)

	_ = t.WithEngine(func(e *tenant.Engine) error {
		comp := engine.Compose(e, engine.GrantAs(engine.PlaceholderSubject), reqctx, h.logger)
		comp.Authorize(r.Context(), w, r)
		return nil
	})
}
