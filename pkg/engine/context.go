// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"log/slog"
	"net/http"
)

// RequestContext is a cross-cutting addon derived from one request's
// connection metadata. It is attached to a composition for the duration of a
// single request, observed by the token issuance paths, and dropped
// afterwards; it holds no references into tenant state.
type RequestContext struct {
	// Peer is the remote address of the connection.
	Peer string

	// Scheme is the effective scheme ("http" or "https"), accounting for
	// TLS termination at a fronting proxy.
	Scheme string

	// Host is the host the client addressed, after proxy rewrites.
	Host string

	// Proto is the negotiated HTTP protocol version.
	Proto string
}

// ContextFromRequest builds the request context from connection metadata.
func ContextFromRequest(r *http.Request) *RequestContext {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}

	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}

	return &RequestContext{
		Peer:   r.RemoteAddr,
		Scheme: scheme,
		Host:   host,
		Proto:  r.Proto,
	}
}

// LogValue implements slog.LogValuer so the context logs as one group.
func (c *RequestContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("peer", c.Peer),
		slog.String("scheme", c.Scheme),
		slog.String("host", c.Host),
		slog.String("proto", c.Proto),
	)
}
