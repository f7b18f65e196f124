// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the mock OpenID Connect provider.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mockidp/mockidp/cmd/mockidp/app"
	"github.com/mockidp/mockidp/pkg/logging"
)

func main() {
	// Initialize the logger. The --debug flag is only known after cobra has
	// parsed the command line, so the root command raises the level again
	// in its PersistentPreRun.
	slog.SetDefault(logging.New())

	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	// Execute the root command with context
	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error(fmt.Sprintf("Error executing command: %v", err))
		os.Exit(1)
	}
}
