// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Configuration command.
//
// Command: config [subcommand]
//
// Subcommands:
//
//	show (default)      Show the effective configuration
//	get KEY             Print one value, e.g. remote.provider
//	set KEY VALUE       Change one value in the config file
//	keys                List every key
//	path                Show the config file path
//	reset               Write the default configuration
//
// set and reset edit the file Load reads, without environment overrides,
// so secrets passed through the environment are never written to disk.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/aidchat/internal/config"
)

// HandleConfig handles the "config" command against the active config file.
func HandleConfig(args Args, out io.Writer) error {
	path, err := config.ActivePath()
	if err != nil {
		return err
	}
	return runConfig(args, path, out)
}

func runConfig(args Args, path string, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args, path, out)
	case "get":
		return configGet(args.ConfigKey, path, out)
	case "set":
		return configSet(args.ConfigKey, args.ConfigVal, path, out)
	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(out, k)
		}
		return nil
	case "path":
		status := "exists"
		if _, err := os.Stat(path); err != nil {
			status = "not created yet"
		}
		fmt.Fprintf(out, "%s (%s)\n", path, status)
		return nil
	case "reset":
		if err := config.SaveToPath(config.Default(), path); err != nil {
			return err
		}
		fmt.Fprintln(out, SuccessStyle.Render("[OK]")+" Configuration reset to defaults")
		return nil
	default:
		return &UsageError{
			Message:    "unknown config subcommand: " + args.Subcommand,
			Suggestion: SuggestCommand(args.Subcommand, []string{"show", "get", "set", "keys", "path", "reset"}),
		}
	}
}

// configShow prints the file's values with environment overrides applied,
// which is what a chat session would use.
func configShow(args Args, path string, out io.Writer) error {
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides()

	if args.JSON {
		fmt.Fprintln(out, cfg.String())
		return nil
	}

	fmt.Fprintln(out, TitleStyle.Render("aidchat configuration"))
	fmt.Fprintln(out, RenderSeparator())
	section := ""
	for _, key := range config.Keys() {
		sec, _, _ := strings.Cut(key, ".")
		if sec != section {
			section = sec
			fmt.Fprintln(out)
			fmt.Fprintln(out, ValueStyle.Render("["+sec+"]"))
		}
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "  %s %s\n", RenderLabel(key), displayValue(key, v))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, DimStyle.Render("Config file: "+path))
	return nil
}

func configGet(key, path string, out io.Writer) error {
	if key == "" {
		return &UsageError{Message: "usage: aidchat config get KEY (see aidchat config keys)"}
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides()
	v, err := cfg.Get(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, displayValue(key, v))
	return nil
}

func configSet(key, value, path string, out io.Writer) error {
	if key == "" {
		return &UsageError{Message: "usage: aidchat config set KEY VALUE"}
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveToPath(cfg, path); err != nil {
		return err
	}
	v, _ := cfg.Get(key)
	fmt.Fprintf(out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, displayValue(key, v))
	return nil
}

// displayValue formats a config value for the terminal.
// SECURITY: API keys are masked.
func displayValue(key string, v any) string {
	s := fmt.Sprint(v)
	if strings.HasSuffix(key, "api_key") {
		return maskAPIKey(s)
	}
	if key == "remote.instructions" {
		first, _, more := strings.Cut(s, "\n")
		if more {
			return first + " ..."
		}
	}
	return s
}

func maskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}
