// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mockidp/mockidp/pkg/engine"
	"github.com/mockidp/mockidp/pkg/tenant"
)

// discoveryDocument is the OIDC provider metadata served per tenant.
// Endpoint URLs are assembled from the per-request issuer URL so that the
// document stays consistent with the host the client actually addressed.
type discoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// discovery serves the per-tenant OIDC discovery document.
func (h *Handler) discovery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "issuer")
	t, err := h.registry.Resolve(name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	issuerURL, err := h.registry.IssuerURL(r, name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	issuer := issuerURL.String()

	doc := discoveryDocument{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/auth",
		TokenEndpoint:         issuer + "/token",
		UserinfoEndpoint:      issuer + "/userinfo",
		JWKSURI:               issuer + "/keys",
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
			"client_credentials",
		},
		SubjectTypesSupported: []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{
			t.Keys().SigningAlgorithm(),
		},
		ScopesSupported: []string{
			"openid",
			"profile",
			"email",
			"offline_access",
		},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic",
			"client_secret_post",
			"none",
		},
		ClaimsSupported: []string{
			"iss", "sub", "aud", "exp", "iat", "azp",
		},
		CodeChallengeMethodsSupported: []string{"S256"},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		h.logger.Error("failed to encode discovery document", "issuer", name, "error", err)
	}
}

// jwks serves the tenant's public signing keys. Private key material never
// appears in the response.
func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "issuer")
	t, err := h.registry.Resolve(name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	_ = t.ViewEngine(func(_ *tenant.Engine) error {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		return json.NewEncoder(w).Encode(t.Keys().PublicJWKS())
	})
}

// userinfo serves the claims of the mock's single resource owner. The double
// authenticates nobody, so the response is the same fixed set of claims for
// every caller.
func (h *Handler) userinfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "issuer")
	t, err := h.registry.Resolve(name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	issuerURL, err := h.registry.IssuerURL(r, name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	claims := map[string]any{
		"iss":                issuerURL.String(),
		"sub":                engine.PlaceholderSubject,
		"name":               engine.PlaceholderSubject,
		"preferred_username": engine.PlaceholderSubject,
		"email":              "marvin@example.com",
		"email_verified":     true,
	}

	_ = t.ViewEngine(func(_ *tenant.Engine) error {
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(claims)
	})
}
