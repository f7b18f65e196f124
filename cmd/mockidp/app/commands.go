// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mockidp command-line application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mockidp/mockidp/pkg/config"
	"github.com/mockidp/mockidp/pkg/logging"
	"github.com/mockidp/mockidp/pkg/registry"
	"github.com/mockidp/mockidp/pkg/server"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:               "mockidp",
	DisableAutoGenTag: true,
	Short:             "Mock OpenID Connect provider for integration tests",
	Long: `mockidp hosts one or more mock OpenID Connect issuers on a single
listener, each addressed by its own path segment. Every issuer serves
discovery, authorization, token, JWKS and userinfo endpoints, auto-grants
consent on behalf of a fixed test subject, and amends successful token
responses with a signed id_token.

It is a test double: state is in memory only and keys are regenerated on
every start unless configured otherwise. Do not expose it to anything that
matters.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Flags are parsed by now, so the --debug switch is visible.
		configureLogging(viper.GetBool("debug"))
	},
}

// configureLogging raises the default logger to debug level. Called once the
// flag set has been parsed, and again when a config file asks for debug.
func configureLogging(debug bool) {
	if debug {
		slog.SetDefault(logging.New(logging.WithLevel(slog.LevelDebug)))
	}
}

// NewRootCmd creates a new root command for the mockidp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		slog.Error("Error binding debug flag", "error", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		slog.Error("Error binding config flag", "error", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	rootCmd.SilenceUsage = true

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the mock provider",
		Long: `Start the mock provider and serve all configured issuers.

Without --config a built-in single-issuer configuration is used, with one
confidential and one public client, listening on localhost:8020.`,
		RunE: runServe,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("mockidp version: %s\n", getVersion())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("no configuration file specified, use --config flag")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}

			slog.Info("configuration is valid",
				"address", cfg.Address, "issuers", len(cfg.Issuers))
			for _, iss := range cfg.Issuers {
				slog.Info("issuer", "name", iss.Name, "clients", len(iss.Clients))
			}
			return nil
		},
	}
}

// getVersion returns the version string (set at build time via ldflags).
func getVersion() string {
	return "dev"
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg.Debug)

	tenants, err := cfg.Materialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to materialize issuers: %w", err)
	}

	// Bind before building the registry so an ephemeral port (":0") is
	// resolved by the time issuer URLs are derived from the bind address.
	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Address, err)
	}
	bound := listener.Addr().String()

	reg, err := registry.New(bound, tenants...)
	if err != nil {
		return err
	}

	for i, t := range tenants {
		clientIDs := make([]string, 0, len(cfg.Issuers[i].Clients))
		for _, c := range cfg.Issuers[i].Clients {
			clientIDs = append(clientIDs, c.ID)
		}
		slog.Info("hosting issuer",
			"name", t.Name(), "kid", t.Keys().KeyID(), "clients", clientIDs)
	}

	handler := server.NewHandler(reg, slog.Default())
	srv := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	slog.Info("mock provider listening", "address", bound)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// loadConfig reads the configured file, or falls back to the built-in
// single-issuer default when no file is given.
func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		slog.Info("no configuration file given, using built-in defaults")
		return config.Default(), nil
	}

	slog.Info("loading configuration", "path", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	return cfg, nil
}
