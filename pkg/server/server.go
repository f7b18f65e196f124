// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the mock provider's HTTP surface: per-tenant OIDC
// discovery, authorization, token, JWKS and userinfo endpoints, addressed by
// a path-embedded issuer name.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mockidp/mockidp/pkg/registry"
)

// Handler provides the HTTP handlers for every hosted issuer.
type Handler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewHandler creates a Handler over the given registry.
func NewHandler(reg *registry.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: reg, logger: logger}
}

// Routes returns the router with all tenant endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.CleanPath,
		h.logRequests,
	)

	r.Get("/", h.root)

	r.Route("/{issuer}", func(r chi.Router) {
		r.Get("/", h.index)
		r.Get("/.well-known/openid-configuration", h.discovery)
		r.Get("/auth", h.authorize)
		r.Post("/auth", h.authorize)
		r.Get("/keys", h.jwks)
		r.Get("/userinfo", h.userinfo)
		r.Post("/userinfo", h.userinfo)
		r.Post("/token", h.token)
	})

	return r
}

// root identifies the service and lists the hosted issuers.
func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "mock OpenID Connect provider\nissuers: %s\n",
		strings.Join(h.registry.Names(), ", "))
}

// index is a liveness endpoint naming the tenant.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "issuer")
	if _, err := h.registry.Resolve(name); err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Issuer: %s", name)
}

// logRequests emits one structured log line per request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Info("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"peer", r.RemoteAddr,
		)
	})
}
