// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tenant holds the per-issuer state of the mock provider: signing key
// material, the OAuth2 protocol engine, and the in-memory session storage the
// engine runs over. Each tenant is fully independent of every other tenant.
package tenant

import (
	"fmt"
	"sync"
)

// Tenant is one hosted issuer: an immutable name and key material plus the
// mutable protocol engine. The engine is guarded by a reader/writer lock so
// protocol-mutating operations (authorize, token) are serialized per tenant
// while read-only operations (JWKS export, discovery) proceed concurrently.
// Tenants never share state, so operations against different tenants never
// contend.
type Tenant struct {
	name string
	keys *KeyMaterial

	mu     sync.RWMutex
	engine *Engine
}

// New creates a tenant from its name, key material and engine.
func New(name string, keys *KeyMaterial, engine *Engine) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name cannot be empty")
	}
	if keys == nil {
		return nil, fmt.Errorf("tenant %q: key material is required", name)
	}
	if engine == nil {
		return nil, fmt.Errorf("tenant %q: engine is required", name)
	}
	return &Tenant{name: name, keys: keys, engine: engine}, nil
}

// Name returns the tenant's unique name, used as its path segment.
func (t *Tenant) Name() string {
	return t.name
}

// Keys returns the tenant's signing key material. Read-only after
// construction; safe for concurrent use.
func (t *Tenant) Keys() *KeyMaterial {
	return t.keys
}

// WithEngine runs fn with exclusive access to the protocol engine. The engine
// is borrowed for the duration of fn only; fn must not retain it. All
// protocol-mutating operations go through here.
func (t *Tenant) WithEngine(fn func(e *Engine) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.engine)
}

// ViewEngine runs fn with shared access to the protocol engine, for read-only
// operations. Concurrent viewers are allowed; a viewer never observes a
// half-applied mutation because mutators hold the write lock.
func (t *Tenant) ViewEngine(fn func(e *Engine) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(t.engine)
}
