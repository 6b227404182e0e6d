// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command.
//
// Command: status
// Aliases: s
//
// Shows the assistant provider, whether it is usable, and where the
// conversation and logs are kept.
//
// Flags:
//
//	--json              Output in JSON format
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jeranaias/aidchat/internal/config"
	"github.com/jeranaias/aidchat/internal/logging"
	"github.com/jeranaias/aidchat/internal/remote/ollama"
	"github.com/jeranaias/aidchat/internal/storage"
)

// StatusData is the status report. It is also the --json output.
type StatusData struct {
	Provider      string `json:"provider"`
	Model         string `json:"model,omitempty"`
	ProviderState string `json:"provider_state"`
	WebSearch     bool   `json:"web_search"`
	Storage       string `json:"storage"`
	StoragePath   string `json:"storage_path"`
	Messages      int    `json:"messages"`
	StorageError  string `json:"storage_error,omitempty"`
	LogFile       string `json:"log_file"`
	Metrics       string `json:"metrics"`
}

// CollectStatus builds the status report for cfg. Only the Ollama provider
// is contacted, with a short timeout.
func CollectStatus(ctx context.Context, cfg *config.Config) StatusData {
	s := StatusData{
		Provider:  cfg.Remote.Provider,
		Model:     cfg.Remote.Model,
		WebSearch: cfg.Remote.WebSearch,
		Storage:   cfg.Storage.Backend,
		LogFile:   cfg.Log.File,
		Metrics:   "disabled",
	}
	if s.LogFile == "" {
		s.LogFile = logging.DefaultFile()
	}
	if cfg.Metrics.Enabled {
		s.Metrics = "http://" + cfg.Metrics.Addr + "/metrics"
	}

	switch cfg.Remote.Provider {
	case "gemini":
		if cfg.Remote.APIKey == "" {
			s.ProviderState = "no API key (set GEMINI_API_KEY)"
		} else {
			s.ProviderState = "configured"
		}
	case "ollama":
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		client := ollama.NewClient(&ollama.ClientConfig{BaseURL: cfg.Remote.BaseURL, Timeout: 3 * time.Second})
		if err := client.CheckRunning(cctx); err != nil {
			s.ProviderState = err.Error()
		} else {
			s.ProviderState = "running"
		}
	default:
		s.ProviderState = "scripted demo"
	}

	s.StoragePath = cfg.Storage.Path
	if s.StoragePath == "" {
		s.StoragePath = storage.DefaultDir()
	}
	history, slot, err := OpenHistory(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		s.StorageError = err.Error()
		return s
	}
	defer slot.Close()
	msgs, err := history.LoadStrict()
	if err != nil {
		s.StorageError = err.Error()
	}
	s.Messages = len(msgs)
	return s
}

// HandleStatus prints the status report for cfg.
func HandleStatus(ctx context.Context, cfg *config.Config, out io.Writer, jsonMode bool) error {
	s := CollectStatus(ctx, cfg)
	if jsonMode {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	printStatus(out, s)
	return nil
}

func printStatus(out io.Writer, s StatusData) {
	fmt.Fprintln(out, TitleStyle.Render("aidchat status"))
	fmt.Fprintln(out, RenderSeparator())

	state := RenderStatus("ok")
	if s.ProviderState != "configured" && s.ProviderState != "running" && s.ProviderState != "scripted demo" {
		state = RenderStatus("warn")
	}
	model := s.Model
	if model == "" {
		model = "(provider default)"
	}
	fmt.Fprintf(out, "%s %s %s\n", RenderLabel("Provider"), ValueStyle.Render(s.Provider), state)
	fmt.Fprintf(out, "%s %s\n", RenderLabel("State"), s.ProviderState)
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Model"), model)
	fmt.Fprintf(out, "%s %t\n", RenderLabel("Web search"), s.WebSearch)

	fmt.Fprintln(out)
	storageState := RenderStatus("ok")
	if s.StorageError != "" {
		storageState = RenderStatus("warn")
	}
	fmt.Fprintf(out, "%s %s %s\n", RenderLabel("Storage"), s.Storage, storageState)
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Location"), s.StoragePath)
	fmt.Fprintf(out, "%s %d\n", RenderLabel("Messages"), s.Messages)
	if s.StorageError != "" {
		fmt.Fprintf(out, "%s %s\n", RenderLabel("Problem"), WarningStyle.Render(s.StorageError))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Log file"), s.LogFile)
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Metrics"), s.Metrics)
}
