// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process-wide slog logger.
//
// The TUI owns stdout, so logs go to a file by default. Attributes whose key
// names a credential are redacted before they reach the handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options configures Init.
type Options struct {
	// Level is "debug", "info", "warn"/"warning" or "error" (default info)
	Level string
	// File is the log file path. "-" writes to stderr; empty uses DefaultFile.
	File string
	// Format is "text" (default) or "json"
	Format string
}

var sensitive = map[string]struct{}{
	"api_key":        {},
	"apikey":         {},
	"authorization":  {},
	"x-goog-api-key": {},
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to
// Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultFile returns ~/.aidchat/aidchat.log.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "aidchat.log"
	}
	return filepath.Join(home, ".aidchat", "aidchat.log")
}

// Init opens the configured sink and returns a logger writing to it. The
// returned closer releases the sink; it is a no-op for stderr. When the
// file cannot be opened Init falls back to stderr and reports the error.
func Init(opts Options) (*slog.Logger, io.Closer, error) {
	path := opts.File
	if path == "" {
		path = DefaultFile()
	}
	if path == "-" {
		return New(os.Stderr, opts), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return New(os.Stderr, opts), nopCloser{}, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return New(os.Stderr, opts), nopCloser{}, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return New(f, opts), f, nil
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: redact,
	}
	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitive[strings.ToLower(a.Key)]; ok && a.Value.String() != "" {
		return slog.String(a.Key, "<redacted>")
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
