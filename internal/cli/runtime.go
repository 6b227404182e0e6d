// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - Wiring shared by the TUI and the line-mode commands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jeranaias/aidchat/internal/config"
	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/logging"
	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/remote"
	"github.com/jeranaias/aidchat/internal/remote/gemini"
	"github.com/jeranaias/aidchat/internal/remote/ollama"
	"github.com/jeranaias/aidchat/internal/storage"
	"github.com/jeranaias/aidchat/internal/telemetry"
)

// Runtime holds everything a chat surface needs.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Service      remote.Service
	History      *storage.History
	Conversation *model.Conversation
	Controller   *exchange.Controller
	Metrics      *telemetry.Recorder

	closers []io.Closer
}

// LoadConfig loads .env files and the config file, then applies the
// command-line overrides in args and validates the result.
func LoadConfig(args Args) (*config.Config, error) {
	_ = config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyArgs(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyArgs(cfg *config.Config, args Args) {
	if args.Provider != "" {
		cfg.Remote.Provider = strings.ToLower(args.Provider)
	}
	if args.Demo {
		cfg.Remote.Provider = "demo"
	}
	if args.Model != "" {
		cfg.Remote.Model = args.Model
	}
	if args.NoSearch {
		cfg.Remote.WebSearch = false
	}
	if args.Storage != "" {
		cfg.Storage.Backend = strings.ToLower(args.Storage)
	}
	if args.Theme != "" {
		cfg.UI.Theme = strings.ToLower(args.Theme)
	}
	if args.LogFile != "" {
		cfg.Log.File = args.LogFile
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
}

// NewService builds the remote service named by cfg.Remote.Provider.
func NewService(cfg *config.Config, logger *slog.Logger) (remote.Service, error) {
	switch cfg.Remote.Provider {
	case "gemini":
		return gemini.NewClient(cfg.Remote.APIKey).
			WithBaseURL(cfg.Remote.BaseURL).
			WithModel(cfg.Remote.Model).
			WithLogger(logger), nil
	case "ollama":
		return ollama.NewClient(&ollama.ClientConfig{
			BaseURL:      cfg.Remote.BaseURL,
			Timeout:      cfg.Timeout(),
			DefaultModel: cfg.Remote.Model,
		}).WithLogger(logger), nil
	case "demo":
		return remote.NewDemo(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Remote.Provider)
	}
}

// OpenHistory opens the configured storage slot. The caller closes the
// returned slot.
func OpenHistory(cfg *config.Config, logger *slog.Logger) (*storage.History, storage.Slot, error) {
	backend, err := storage.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return nil, nil, err
	}
	dir := cfg.Storage.Path
	if dir == "" {
		dir = storage.DefaultDir()
	}
	slot, err := storage.Open(backend, dir)
	if err != nil {
		return nil, nil, err
	}
	h := storage.NewHistory(slot, cfg.Storage.Slot, logger).WithFallbackText(cfg.Chat.FallbackText)
	return h, slot, nil
}

// Setup loads configuration and builds the runtime: logger, storage,
// restored conversation, remote service and controller.
func Setup(args Args) (*Runtime, error) {
	cfg, err := LoadConfig(args)
	if err != nil {
		return nil, err
	}
	return NewRuntime(cfg)
}

// NewRuntime builds a runtime from an already loaded config.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	logger, logCloser, err := logging.Init(logging.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Format: cfg.Log.Format,
	})
	rt.Logger = logger
	rt.closers = append(rt.closers, logCloser)
	if err != nil {
		logger.Warn("logging to stderr", "error", err)
	}

	history, slot, err := OpenHistory(cfg, logger)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	rt.History = history
	rt.closers = append(rt.closers, slot)

	svc, err := NewService(cfg, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc

	rt.Metrics = telemetry.NewRecorder()
	rt.Conversation = model.NewConversationFrom(history.Load(), history)
	rt.Controller = rt.NewController(rt.Conversation)

	logger.Info("runtime ready",
		"provider", cfg.Remote.Provider,
		"storage", cfg.Storage.Backend,
		"messages", rt.Conversation.Len())
	return rt, nil
}

// NewController creates a controller over conv using the runtime's
// service, session settings and metrics.
func (r *Runtime) NewController(conv *model.Conversation) *exchange.Controller {
	return exchange.New(conv, r.Service, exchange.Options{
		SessionConfig: remote.SessionConfig{
			Instructions: r.Config.Remote.Instructions,
			WebSearch:    r.Config.Remote.WebSearch,
			Model:        r.Config.Remote.Model,
		},
		MinInterval: r.Config.MinInterval(),
		Logger:      r.Logger,
		Metrics:     r.Metrics,
	})
}

// ServeMetrics starts the metrics listener in the background when enabled.
// It stops when ctx is cancelled.
func (r *Runtime) ServeMetrics(ctx context.Context) {
	if !r.Config.Metrics.Enabled {
		return
	}
	go func() {
		if err := telemetry.Serve(ctx, r.Config.Metrics.Addr, r.Metrics, r.Logger); err != nil {
			r.Logger.Error("metrics listener stopped", "error", err)
		}
	}()
}

// Stats returns the one-line session summary shown by /stats.
func (r *Runtime) Stats() string {
	return r.Metrics.Summary().String()
}

// Close ends the remote session and releases storage and the log sink, in
// reverse order of acquisition.
func (r *Runtime) Close() error {
	var errs []error
	if r.Controller != nil {
		errs = append(errs, r.Controller.Close())
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}
