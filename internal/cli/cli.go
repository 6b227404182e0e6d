// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for aidchat.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdExport
	CmdConfig
	CmdStatus
	CmdVersion
	CmdHelp
	CmdUnknown
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdExport:
		return "export"
	case CmdConfig:
		return "config"
	case CmdStatus:
		return "status"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Provider string
	Model    string
	Storage  string
	Theme    string
	LogFile  string
	Demo     bool
	Plain    bool // force the line REPL even on a terminal
	Verbose  bool
	Quiet    bool
	JSON     bool
	NoSearch bool

	// Command-specific
	Query      string
	Subcommand string
	ConfigKey  string
	ConfigVal  string
	Format     string
	Output     string
	Stdout     bool

	// Name is the unrecognized command word for CmdUnknown.
	Name string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `aidchat - benefits assistance chat for the terminal

Usage:
  aidchat                        Start the chat UI (line mode when not a terminal)
  aidchat chat                   Line-mode chat
  aidchat ask "question"         Ask a single question and print the answer
  aidchat export                 Write the saved conversation
    --format txt|md|html|json    Export format (default: txt)
    --output DIR                 Directory for the file (default: .)
    --stdout                     Print instead of writing a file
  aidchat config [show|get|set|keys|path]
                                 Configuration
  aidchat status                 Show provider and storage status
  aidchat version                Show version

Global Flags:
  --provider NAME   gemini, ollama or demo
  --demo            Use the scripted demo assistant (no network)
  --model NAME      Override the provider's model
  --storage NAME    file, sqlite or pebble
  --theme NAME      dark, light or auto
  --no-search       Disable web search grounding
  --log-file PATH   Log file ("-" for stderr)
  --plain           Line mode even on a terminal
  --json            JSON output (ask, config show, status)
  -q, --quiet       Minimal output
  -v, --verbose     Debug logging

Examples:
  aidchat --demo                          Try the UI without an API key
  aidchat ask "Am I eligible for SNAP?"   One question, answer on stdout
  aidchat export --format md --output ~/Documents
  aidchat config set remote.provider ollama

Version: %s
`

// PrintUsage writes the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "aidchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdTUI, args
	}

	word := strings.ToLower(remaining[0])
	rest := remaining[1:]
	args.Raw = rest

	switch word {
	case "tui":
		return CmdTUI, args
	case "chat", "repl":
		return CmdChat, args
	case "ask", "a":
		args.Query = strings.Join(rest, " ")
		return CmdAsk, args
	case "export":
		parseExportArgs(&args, rest)
		return CmdExport, args
	case "config", "cfg":
		parseConfigArgs(&args, rest)
		return CmdConfig, args
	case "status", "s":
		return CmdStatus, args
	case "version", "--version", "-V":
		return CmdVersion, args
	case "help", "--help", "-h":
		return CmdHelp, args
	default:
		args.Name = remaining[0]
		return CmdUnknown, args
	}
}

var valueFlags = map[string]bool{
	"provider": true, "model": true, "storage": true, "theme": true, "log-file": true,
	"format": true, "output": true, "o": true, "f": true, "m": true,
}

// parseGlobalFlags pulls global flags out of argv, wherever they appear,
// and returns the remaining words.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	var remaining []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			remaining = append(remaining, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !hasValue && valueFlags[name] && i+1 < len(argv) {
			i++
			value = argv[i]
		}

		switch name {
		case "provider":
			args.Provider = value
		case "model", "m":
			args.Model = value
		case "storage":
			args.Storage = value
		case "theme":
			args.Theme = value
		case "log-file":
			args.LogFile = value
		case "demo":
			args.Demo = true
		case "plain", "no-tui":
			args.Plain = true
		case "no-search":
			args.NoSearch = true
		case "json":
			args.JSON = true
		case "quiet", "q":
			args.Quiet = true
		case "verbose", "v":
			args.Verbose = true
		default:
			// Command flags (--format, --stdout, ...) are re-parsed by the
			// command; keep them with their value.
			remaining = append(remaining, arg)
			if valueFlags[name] && !hasValue && value != "" {
				remaining = append(remaining, value)
			}
		}
	}
	return remaining, args
}

func parseExportArgs(args *Args, rest []string) {
	p := NewArgParser(rest, "stdout")
	args.Format = p.FlagOrDefault("format", p.Flag("f"))
	args.Output = p.FlagOrDefault("output", p.Flag("o"))
	args.Stdout = p.BoolFlag("stdout")
}

func parseConfigArgs(args *Args, rest []string) {
	p := NewArgParser(rest)
	args.Subcommand = p.Subcommand()
	args.ConfigKey = p.Positional(1)
	args.ConfigVal = JoinPositionalArgs(p, 2)
}
