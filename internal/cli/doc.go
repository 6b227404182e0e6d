// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the line-mode commands for
// aidchat.
//
// # Key Types
//
//   - Command: the top-level commands (tui, chat, ask, export, config, ...)
//   - Args: global and command-specific flags
//   - Runtime: config, logger, storage, remote service and controller,
//     shared by the TUI and the line-mode commands
//   - REPL: the line-mode chat loop on top of peterh/liner
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	rt, err := cli.Setup(args)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//	switch cmd {
//	case cli.CmdChat:
//	    err = cli.HandleChat(ctx, rt, args)
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, rt, args)
//	}
package cli
