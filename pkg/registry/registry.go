// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry maps issuer names to their tenant records and resolves the
// externally visible URLs a tenant is reachable under. The mapping is built
// once at startup and read-only afterwards; the only mutable state lives
// inside each tenant's engine, behind the tenant's own lock.
package registry

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/mockidp/mockidp/pkg/tenant"
)

var (
	// ErrDuplicateIssuer is returned when two tenants share a name.
	// This is a construction-time error: the process must not start.
	ErrDuplicateIssuer = errors.New("duplicate issuer")

	// ErrUnknownIssuer is returned when no tenant has the requested name.
	ErrUnknownIssuer = errors.New("unknown issuer")
)

// Registry resolves tenants by name and builds their external URLs.
type Registry struct {
	// bind is the listener address discovered at bind time, used as the host
	// when a request carries no usable Host header.
	bind string

	tenants map[string]*tenant.Tenant
}

// New builds a registry over the given tenants. The bind address should be
// the listener's resolved address (after an ephemeral port has been
// assigned). A duplicate tenant name fails construction; no partial registry
// is returned.
func New(bind string, tenants ...*tenant.Tenant) (*Registry, error) {
	byName := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		if _, exists := byName[t.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIssuer, t.Name())
		}
		byName[t.Name()] = t
	}
	return &Registry{bind: bind, tenants: byName}, nil
}

// Resolve returns the tenant with the given name.
func (g *Registry) Resolve(name string) (*tenant.Tenant, error) {
	t, ok := g.tenants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIssuer, name)
	}
	return t, nil
}

// Names returns the registered tenant names in sorted order.
func (g *Registry) Names() []string {
	names := make([]string, 0, len(g.tenants))
	for name := range g.tenants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BaseURL derives the externally reachable origin for this request. The host
// is taken from the reverse proxy's X-Forwarded-Host if present, then the
// request's Host header, then the bound listener address; the scheme follows
// X-Forwarded-Proto or the connection's TLS state. Resolved per request
// rather than cached because the bound address may be a wildcard or an
// ephemeral port, and a fronting proxy may rewrite hosts.
func (g *Registry) BaseURL(r *http.Request) (*url.URL, error) {
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
	if host == "" {
		host = g.bind
	}

	base, err := url.Parse(scheme + "://" + host)
	if err != nil {
		return nil, fmt.Errorf("failed to construct base URL: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("failed to construct base URL: empty host in %q", host)
	}

	return base, nil
}

// IssuerURL is the base URL with the tenant name appended as a path segment.
// This is the issuer identifier OIDC clients see in discovery documents and
// id_token iss claims.
func (g *Registry) IssuerURL(r *http.Request, name string) (*url.URL, error) {
	base, err := g.BaseURL(r)
	if err != nil {
		return nil, err
	}
	if base.Opaque != "" {
		return nil, fmt.Errorf("cannot append path segment to non-hierarchical URL %q", base)
	}
	return base.JoinPath(name), nil
}
