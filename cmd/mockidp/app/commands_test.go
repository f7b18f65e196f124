// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockidp/mockidp/pkg/logging"
)

// These tests mutate the process-wide default logger and the package-level
// root command, so they do not run in parallel.

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestConfigureLogging(t *testing.T) {
	restoreDefaultLogger(t)
	ctx := context.Background()

	slog.SetDefault(logging.New())
	require.False(t, slog.Default().Enabled(ctx, slog.LevelDebug))

	// Debug off leaves the logger alone.
	configureLogging(false)
	assert.False(t, slog.Default().Enabled(ctx, slog.LevelDebug))

	configureLogging(true)
	assert.True(t, slog.Default().Enabled(ctx, slog.LevelDebug))
}

func TestDebugFlagRaisesLogLevel(t *testing.T) {
	restoreDefaultLogger(t)
	ctx := context.Background()

	slog.SetDefault(logging.New())
	require.False(t, slog.Default().Enabled(ctx, slog.LevelDebug))

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--debug", "version"})
	require.NoError(t, cmd.ExecuteContext(ctx))

	// The flag is only visible after parsing; PersistentPreRun must have
	// raised the level.
	assert.True(t, slog.Default().Enabled(ctx, slog.LevelDebug))
}
