// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTenant(t *testing.T, name string) *Tenant {
	t.Helper()

	keys, err := GenerateKeyMaterial()
	require.NoError(t, err)

	engine, err := NewEngine(keys, EngineConfig{Issuer: name})
	require.NoError(t, err)

	tnt, err := New(name, keys, engine)
	require.NoError(t, err)
	return tnt
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	keys, err := GenerateKeyMaterial()
	require.NoError(t, err)
	engine, err := NewEngine(keys, EngineConfig{Issuer: "x"})
	require.NoError(t, err)

	_, err = New("", keys, engine)
	require.Error(t, err)

	_, err = New("x", nil, engine)
	require.Error(t, err)

	_, err = New("x", keys, nil)
	require.Error(t, err)
}

func TestTenant_Accessors(t *testing.T) {
	t.Parallel()

	tnt := newTestTenant(t, "alpha")
	assert.Equal(t, "alpha", tnt.Name())
	assert.NotNil(t, tnt.Keys())
}

func TestWithEngine_Serializes(t *testing.T) {
	t.Parallel()

	tnt := newTestTenant(t, "alpha")

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tnt.WithEngine(func(_ *Engine) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	// A second writer must not enter while the first holds the engine.
	entered := make(chan struct{})
	go func() {
		_ = tnt.WithEngine(func(_ *Engine) error {
			close(entered)
			return nil
		})
	}()

	select {
	case <-entered:
		t.Fatal("second writer entered while first held the engine")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("second writer never entered after release")
	}
}

func TestViewEngine_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	tnt := newTestTenant(t, "alpha")

	firstIn := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tnt.ViewEngine(func(_ *Engine) error {
			close(firstIn)
			<-release
			return nil
		})
	}()
	<-firstIn

	// Readers do not exclude each other.
	secondIn := make(chan struct{})
	go func() {
		_ = tnt.ViewEngine(func(_ *Engine) error {
			close(secondIn)
			return nil
		})
	}()

	select {
	case <-secondIn:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked by first reader")
	}
	close(release)
}

func TestTenants_Independent(t *testing.T) {
	t.Parallel()

	alpha := newTestTenant(t, "alpha")
	beta := newTestTenant(t, "beta")

	alphaIn := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = alpha.WithEngine(func(_ *Engine) error {
			close(alphaIn)
			<-release
			return nil
		})
	}()
	<-alphaIn

	// A writer on a different tenant is not blocked.
	betaIn := make(chan struct{})
	go func() {
		_ = beta.WithEngine(func(_ *Engine) error {
			close(betaIn)
			return nil
		})
	}()

	select {
	case <-betaIn:
	case <-time.After(time.Second):
		t.Fatal("writer on beta blocked by writer on alpha")
	}
	close(release)
}
