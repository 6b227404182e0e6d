// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/aidchat/internal/config"
	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/remote"
)

// ===== ARG PARSER TESTS (args.go) =====

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		bools    []string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name: "subcommand and positionals",
			args: []string{"set", "remote.model", "phi3"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Subcommand() != "set" {
					t.Errorf("Subcommand() = %q, want set", p.Subcommand())
				}
				if p.Positional(1) != "remote.model" || p.Positional(2) != "phi3" {
					t.Errorf("positionals = %q %q", p.Positional(1), p.Positional(2))
				}
				if p.Positional(3) != "" || p.Positional(-1) != "" {
					t.Error("out-of-range Positional should be empty")
				}
			},
		},
		{
			name: "long flag with value",
			args: []string{"--format", "md"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("format") != "md" {
					t.Errorf("Flag(format) = %q, want md", p.Flag("format"))
				}
				if p.Subcommand() != "" {
					t.Errorf("flag value taken as positional: %q", p.Subcommand())
				}
			},
		},
		{
			name: "equals syntax",
			args: []string{"--output=/tmp/out", "--stdout=false"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("--output") != "/tmp/out" {
					t.Errorf("Flag(output) = %q", p.Flag("output"))
				}
				if p.BoolFlag("stdout") {
					t.Error("--stdout=false should be false")
				}
			},
		},
		{
			name:  "bool flag does not consume next word",
			args:  []string{"--stdout", "extra"},
			bools: []string{"stdout"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("stdout") {
					t.Error("BoolFlag(stdout) = false")
				}
				if p.Subcommand() != "extra" {
					t.Errorf("Subcommand() = %q, want extra", p.Subcommand())
				}
			},
		},
		{
			name: "trailing flag is boolean",
			args: []string{"show", "--json"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("json") {
					t.Error("BoolFlag(json) = false")
				}
			},
		},
		{
			name: "flag followed by flag",
			args: []string{"-v", "-o", "dir"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("v") || p.Flag("o") != "dir" {
					t.Errorf("v=%v o=%q", p.BoolFlag("v"), p.Flag("o"))
				}
			},
		},
		{
			name: "default",
			args: nil,
			validate: func(t *testing.T, p *ArgParser) {
				if got := p.FlagOrDefault("format", "txt"); got != "txt" {
					t.Errorf("FlagOrDefault = %q, want txt", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, NewArgParser(tt.args, tt.bools...))
		})
	}
}

func TestJoinPositionalArgs(t *testing.T) {
	p := NewArgParser([]string{"set", "remote.instructions", "Be", "brief."})
	if got := JoinPositionalArgs(p, 2); got != "Be brief." {
		t.Errorf("JoinPositionalArgs = %q, want %q", got, "Be brief.")
	}
	if got := JoinPositionalArgs(p, 9); got != "" {
		t.Errorf("JoinPositionalArgs past end = %q, want empty", got)
	}
}

// ===== COMMAND PARSING TESTS (cli.go) =====

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{name: "no args starts the UI", argv: nil, wantCmd: CmdTUI},
		{
			name:    "global flag without command",
			argv:    []string{"--demo", "--theme", "light"},
			wantCmd: CmdTUI,
			validate: func(t *testing.T, a Args) {
				if !a.Demo || a.Theme != "light" {
					t.Errorf("Demo=%v Theme=%q", a.Demo, a.Theme)
				}
			},
		},
		{
			name:    "chat with provider",
			argv:    []string{"chat", "--provider", "ollama", "-m", "llama3"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				if a.Provider != "ollama" || a.Model != "llama3" {
					t.Errorf("Provider=%q Model=%q", a.Provider, a.Model)
				}
			},
		},
		{name: "repl alias", argv: []string{"repl"}, wantCmd: CmdChat},
		{
			name:    "ask joins words",
			argv:    []string{"ask", "What", "is", "SNAP?"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Query != "What is SNAP?" {
					t.Errorf("Query = %q", a.Query)
				}
			},
		},
		{
			name:    "ask with json flag anywhere",
			argv:    []string{"ask", "What is WIC?", "--json"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if !a.JSON || a.Query != "What is WIC?" {
					t.Errorf("JSON=%v Query=%q", a.JSON, a.Query)
				}
			},
		},
		{
			name:    "export flags",
			argv:    []string{"export", "--format", "md", "-o", "/tmp/x", "--stdout"},
			wantCmd: CmdExport,
			validate: func(t *testing.T, a Args) {
				if a.Format != "md" || a.Output != "/tmp/x" || !a.Stdout {
					t.Errorf("Format=%q Output=%q Stdout=%v", a.Format, a.Output, a.Stdout)
				}
			},
		},
		{
			name:    "export short format",
			argv:    []string{"export", "-f", "json"},
			wantCmd: CmdExport,
			validate: func(t *testing.T, a Args) {
				if a.Format != "json" || a.Stdout {
					t.Errorf("Format=%q Stdout=%v", a.Format, a.Stdout)
				}
			},
		},
		{
			name:    "config set with spaces",
			argv:    []string{"config", "set", "remote.instructions", "Be", "brief."},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "set" || a.ConfigKey != "remote.instructions" || a.ConfigVal != "Be brief." {
					t.Errorf("Subcommand=%q Key=%q Val=%q", a.Subcommand, a.ConfigKey, a.ConfigVal)
				}
			},
		},
		{name: "cfg alias", argv: []string{"cfg"}, wantCmd: CmdConfig},
		{
			name:    "verbose before command",
			argv:    []string{"-v", "status"},
			wantCmd: CmdStatus,
			validate: func(t *testing.T, a Args) {
				if !a.Verbose {
					t.Error("Verbose = false")
				}
			},
		},
		{name: "version flag", argv: []string{"--version"}, wantCmd: CmdVersion},
		{name: "help flag", argv: []string{"-h"}, wantCmd: CmdHelp},
		{name: "uppercase command", argv: []string{"STATUS"}, wantCmd: CmdStatus},
		{
			name:    "unknown command",
			argv:    []string{"hepl"},
			wantCmd: CmdUnknown,
			validate: func(t *testing.T, a Args) {
				if a.Name != "hepl" {
					t.Errorf("Name = %q", a.Name)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := Parse(tt.argv)
			if cmd != tt.wantCmd {
				t.Fatalf("Parse(%q) = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	if CmdExport.String() != "export" || CmdUnknown.String() != "unknown" {
		t.Errorf("String() = %q, %q", CmdExport.String(), CmdUnknown.String())
	}
}

func TestPrintUsageAndVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	if !strings.Contains(buf.String(), "aidchat ask") || !strings.Contains(buf.String(), Version) {
		t.Errorf("usage missing content:\n%s", buf.String())
	}
	buf.Reset()
	PrintVersion(&buf)
	if !strings.Contains(buf.String(), "aidchat version "+Version) {
		t.Errorf("version output = %q", buf.String())
	}
}

// ===== SUGGESTION TESTS (suggest.go) =====

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hepl", "help"},
		{"stauts", "status"},
		{"chta", "chat"},
		{"exprot", "export"},
		{"x", ""},
		{"status", ""},
		{"zzzzzz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SuggestCommand(tt.input, topCommands); got != tt.want {
				t.Errorf("SuggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"help", "help", 0},
		{"hepl", "help", 2},
	}
	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// ===== CONFIG COMMAND TESTS (config.go) =====

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AIDCHAT_PROVIDER", "AIDCHAT_MODEL", "GEMINI_API_KEY", "AIDCHAT_API_KEY",
		"AIDCHAT_BASE_URL", "AIDCHAT_WEB_SEARCH", "AIDCHAT_STORAGE",
		"AIDCHAT_LOG_LEVEL", "AIDCHAT_METRICS_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func runConfigCmd(t *testing.T, path string, argv ...string) (string, error) {
	t.Helper()
	cmd, args := Parse(append([]string{"config"}, argv...))
	if cmd != CmdConfig {
		t.Fatalf("Parse = %v, want config", cmd)
	}
	var buf bytes.Buffer
	err := runConfig(args, path, &buf)
	return buf.String(), err
}

func TestConfig_SetThenGet(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runConfigCmd(t, path, "set", "remote.provider", "ollama")
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !strings.Contains(out, "remote.provider = ollama") {
		t.Errorf("set output = %q", out)
	}

	out, err = runConfigCmd(t, path, "get", "remote.provider")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if strings.TrimSpace(out) != "ollama" {
		t.Errorf("get = %q, want ollama", out)
	}

	cfg, err := config.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Remote.Provider != "ollama" {
		t.Errorf("file provider = %q", cfg.Remote.Provider)
	}
}

func TestConfig_SetDoesNotPersistEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GEMINI_API_KEY", "env-secret-key")
	path := filepath.Join(t.TempDir(), "config.toml")

	if _, err := runConfigCmd(t, path, "set", "remote.model", "gemini-2.0-flash"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "env-secret-key") {
		t.Error("API key from the environment was written to the config file")
	}
}

func TestConfig_SetInvalidLeavesFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	if _, err := runConfigCmd(t, path, "set", "remote.provider", "nope"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("invalid set wrote the file: %v", err)
	}
}

func TestConfig_MasksAPIKey(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runConfigCmd(t, path, "set", "remote.api_key", "secret123456")
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if strings.Contains(out, "secret123456") {
		t.Errorf("set printed the key: %q", out)
	}

	out, err = runConfigCmd(t, path, "show")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "secr...3456") || strings.Contains(out, "secret123456") {
		t.Errorf("show did not mask the key:\n%s", out)
	}
	if !strings.Contains(out, "[remote]") || !strings.Contains(out, "[storage]") {
		t.Errorf("show missing sections:\n%s", out)
	}
}

func TestConfig_KeysPathAndUnknown(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runConfigCmd(t, path, "keys")
	if err != nil || !strings.Contains(out, "remote.provider\n") {
		t.Errorf("keys = %q, %v", out, err)
	}

	out, _ = runConfigCmd(t, path, "path")
	if !strings.Contains(out, "(not created yet)") {
		t.Errorf("path = %q", out)
	}

	if _, err := runConfigCmd(t, path, "reset"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	out, _ = runConfigCmd(t, path, "path")
	if !strings.Contains(out, "(exists)") {
		t.Errorf("path after reset = %q", out)
	}

	_, err = runConfigCmd(t, path, "shwo")
	if err == nil || !strings.Contains(err.Error(), `did you mean "show"`) {
		t.Errorf("unknown subcommand error = %v", err)
	}

	if _, err := runConfigCmd(t, path, "get"); err == nil {
		t.Error("get without a key should fail")
	}
}

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		key  string
		val  any
		want string
	}{
		{"remote.api_key", "", "(not set)"},
		{"remote.api_key", "short", "****"},
		{"remote.api_key", "abcd12345678wxyz", "abcd...wxyz"},
		{"remote.instructions", "First line\nSecond line", "First line ..."},
		{"chat.min_interval_ms", 1000, "1000"},
	}
	for _, tt := range tests {
		if got := displayValue(tt.key, tt.val); got != tt.want {
			t.Errorf("displayValue(%q, %v) = %q, want %q", tt.key, tt.val, got, tt.want)
		}
	}
}

// ===== EXPORT COMMAND TESTS (export_cmd.go) =====

func sampleMessages() []*model.Message {
	reply := model.NewAssistantMessage()
	reply.Text = "hello"
	reply.IsStreaming = false
	return []*model.Message{model.NewUserMessage("hi"), reply}
}

func TestExportMessages_Stdout(t *testing.T) {
	var buf bytes.Buffer
	err := exportMessages(sampleMessages(), Args{Format: "json", Stdout: true}, &buf)
	if err != nil {
		t.Fatalf("exportMessages failed: %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Fatalf("output is not JSON:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output missing reply:\n%s", buf.String())
	}
}

func TestExportMessages_File(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	err := exportMessages(sampleMessages(), Args{Format: "md", Output: dir, Quiet: true}, &buf)
	if err != nil {
		t.Fatalf("exportMessages failed: %v", err)
	}

	path := strings.TrimSpace(buf.String())
	if filepath.Dir(path) != dir || filepath.Ext(path) != ".md" {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("file missing reply:\n%s", data)
	}
}

func TestExportMessages_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := exportMessages(nil, Args{}, &buf); !errors.Is(err, export.ErrEmpty) {
		t.Errorf("empty conversation err = %v, want ErrEmpty", err)
	}
	if err := exportMessages(sampleMessages(), Args{Format: "pdf", Stdout: true}, &buf); err == nil {
		t.Error("unsupported format should fail")
	}
}

// ===== STATUS COMMAND TESTS (status.go) =====

func TestCollectStatus_Demo(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.Provider = "demo"
	cfg.Storage.Path = t.TempDir()

	history, slot, err := OpenHistory(cfg, nil)
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	if err := history.Save(sampleMessages()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	slot.Close()

	s := CollectStatus(context.Background(), cfg)
	if s.ProviderState != "scripted demo" {
		t.Errorf("ProviderState = %q", s.ProviderState)
	}
	if s.Messages != 2 || s.StorageError != "" {
		t.Errorf("Messages=%d StorageError=%q", s.Messages, s.StorageError)
	}
	if s.Metrics != "disabled" {
		t.Errorf("Metrics = %q", s.Metrics)
	}

	var buf bytes.Buffer
	if err := HandleStatus(context.Background(), cfg, &buf, true); err != nil {
		t.Fatal(err)
	}
	var decoded StatusData
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("status JSON: %v", err)
	}
	if decoded.Provider != "demo" || decoded.Messages != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestCollectStatus_GeminiWithoutKey(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.APIKey = ""
	cfg.Storage.Path = t.TempDir()

	s := CollectStatus(context.Background(), cfg)
	if !strings.Contains(s.ProviderState, "GEMINI_API_KEY") {
		t.Errorf("ProviderState = %q", s.ProviderState)
	}

	var buf bytes.Buffer
	printStatus(&buf, s)
	if !strings.Contains(buf.String(), "Messages") {
		t.Errorf("status text:\n%s", buf.String())
	}
}

// ===== ERROR TESTS (errors.go) =====

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", UnknownCommand("hepl"), ExitUsageError},
		{"no query", ErrNoQuery, ExitUsageError},
		{"invalid config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "remote.provider", Message: "bad"}}), ExitConfigError},
		{"rate limited", &CommandError{Message: exchange.TextRateLimited, Err: remote.ErrRateLimited}, ExitRateLimited},
		{"session open", &exchange.InitError{Err: errors.New("dial tcp: refused")}, ExitNetworkError},
		{"empty export", export.ErrEmpty, ExitNotFoundError},
		{"timeout", fmt.Errorf("ask: %w", context.DeadlineExceeded), ExitTimeoutError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, UnknownCommand("hepl"), false)
	if !strings.Contains(buf.String(), `unknown command: hepl (did you mean "help"?)`) {
		t.Errorf("text = %q", buf.String())
	}

	buf.Reset()
	DisplayError(&buf, export.ErrEmpty, true)
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out["error_type"] != "not_found_error" || out["success"] != false {
		t.Errorf("json = %v", out)
	}

	buf.Reset()
	DisplayError(&buf, nil, false)
	if buf.Len() != 0 {
		t.Errorf("nil error printed %q", buf.String())
	}
}

// ===== TERMINAL TESTS (terminal.go) =====

func TestColorsWanted(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty", nil, true, true},
		{"pipe", nil, false, false},
		{"force on pipe", map[string]string{"FORCE_COLOR": "1"}, false, true},
		{"no color on tty", map[string]string{"NO_COLOR": "1"}, true, false},
		{"no color beats force", map[string]string{"NO_COLOR": "1", "FORCE_COLOR": "1"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if got := colorsWanted(getenv, tt.tty); got != tt.want {
				t.Errorf("colorsWanted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapText_Margin(t *testing.T) {
	got := WrapText("one two three four five", 12)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 10 {
			t.Errorf("line %q wider than 10", line)
		}
	}
}
