// aidchat - A benefits assistance chat for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/aidchat/internal/cli"
	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/ui/chat"
	"github.com/jeranaias/aidchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	// SIGINT is left to each mode: the UI reads Ctrl+C as a key and line
	// mode uses it to stop a reply.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	err := run(ctx, cmd, args)
	stop()

	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}

func run(ctx context.Context, cmd cli.Command, args cli.Args) error {
	// Commands that need no configuration
	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return nil
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return nil
	case cli.CmdUnknown:
		return cli.UnknownCommand(args.Name)
	case cli.CmdConfig:
		return cli.HandleConfig(args, os.Stdout)
	}

	// Commands that read configuration but do not chat
	switch cmd {
	case cli.CmdStatus:
		cfg, err := cli.LoadConfig(args)
		if err != nil {
			return err
		}
		return cli.HandleStatus(ctx, cfg, os.Stdout, args.JSON)
	case cli.CmdExport:
		cfg, err := cli.LoadConfig(args)
		if err != nil {
			return err
		}
		return cli.HandleExport(cfg, args, os.Stdout)
	}

	rt, err := cli.Setup(args)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			rt.Logger.Warn("shutdown", "error", cerr)
		}
	}()
	rt.ServeMetrics(ctx)

	switch {
	case cmd == cli.CmdAsk:
		actx, astop := signal.NotifyContext(ctx, os.Interrupt)
		defer astop()
		return cli.HandleAsk(actx, rt, args)
	case cmd == cli.CmdChat, args.Plain, !cli.Interactive():
		return cli.HandleChat(ctx, rt, args)
	default:
		return runTUI(ctx, rt)
	}
}

// runTUI runs the full-screen chat until the user quits.
func runTUI(ctx context.Context, rt *cli.Runtime) error {
	cfg := rt.Config

	subtitle := cfg.Remote.Provider
	if cfg.Remote.Model != "" {
		subtitle += " · " + cfg.Remote.Model
	}

	m := chat.New(ctx, chat.Config{
		Controller:     rt.Controller,
		Theme:          styles.NewTheme(cfg.UI.Theme),
		Subtitle:       subtitle,
		RenderMarkdown: cfg.UI.RenderMarkdown,
		WordWrap:       cfg.UI.WordWrap,
		Export:         export.DefaultOptions(),
		Stats:          rt.Stats,
		Logger:         rt.Logger,
	})

	// Create the Bubble Tea program
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error running aidchat: %w", err)
	}
	return nil
}
