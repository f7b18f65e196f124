// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logging constructs the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Option configures the logger.
type Option func(*options)

type options struct {
	level  slog.Level
	writer io.Writer
	json   bool
}

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithWriter redirects log output, mainly for tests.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithJSON switches to JSON output for log collectors.
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// New builds a slog.Logger with the given options. Defaults to text output on
// stderr at info level.
func New(opts ...Option) *slog.Logger {
	o := options{
		level:  slog.LevelInfo,
		writer: os.Stderr,
	}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}
	var handler slog.Handler
	if o.json {
		handler = slog.NewJSONHandler(o.writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.writer, handlerOpts)
	}
	return slog.New(handler)
}
