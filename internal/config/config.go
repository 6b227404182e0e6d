// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/aidchat/internal/util"
)

// DefaultInstructions is the behavioral instruction set sent when a session
// is opened.
const DefaultInstructions = `You are a friendly assistant that helps people find and apply for public assistance programs such as housing, food, utility and medical benefits.
Use plain language at about a sixth-grade reading level.
When you need details from the user, ask them as a short numbered list of yes/no questions, one per line, each ending with a question mark.
When the user has several programs to choose from, list them as a numbered list with the program name first.
Cite official sources when you can.`

// Providers names every supported remote provider.
var Providers = []string{"gemini", "ollama", "demo"}

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete aidchat configuration.
type Config struct {
	Version string `toml:"version" yaml:"version" json:"version"`

	Remote  RemoteConfig  `toml:"remote" yaml:"remote" json:"remote"`
	Chat    ChatConfig    `toml:"chat" yaml:"chat" json:"chat"`
	Storage StorageConfig `toml:"storage" yaml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" yaml:"log" json:"log"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics" json:"metrics"`
	UI      UIConfig      `toml:"ui" yaml:"ui" json:"ui"`
}

// RemoteConfig selects and configures the assistant backend.
type RemoteConfig struct {
	// Provider is one of "gemini", "ollama", "demo"
	Provider string `toml:"provider" yaml:"provider" json:"provider"`
	// Model overrides the provider's default model
	Model string `toml:"model" yaml:"model" json:"model"`
	// APIKey authenticates against the provider (gemini only)
	APIKey string `toml:"api_key" yaml:"api_key" json:"api_key"`
	// BaseURL overrides the provider endpoint
	BaseURL string `toml:"base_url" yaml:"base_url" json:"base_url"`
	// WebSearch enables grounded answers with citations
	WebSearch bool `toml:"web_search" yaml:"web_search" json:"web_search"`
	// Instructions is the system instruction for every session
	Instructions string `toml:"instructions" yaml:"instructions" json:"instructions"`
	// TimeoutSecs bounds non-streaming requests such as health checks
	TimeoutSecs int `toml:"timeout_secs" yaml:"timeout_secs" json:"timeout_secs"`
}

// ChatConfig controls the exchange controller.
type ChatConfig struct {
	// MinIntervalMs is the minimum time between accepted submissions
	MinIntervalMs int `toml:"min_interval_ms" yaml:"min_interval_ms" json:"min_interval_ms"`
	// FallbackText replaces empty replies that failed
	FallbackText string `toml:"fallback_text" yaml:"fallback_text" json:"fallback_text"`
}

// StorageConfig controls where the conversation is kept.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "pebble"
	Backend string `toml:"backend" yaml:"backend" json:"backend"`
	// Path is the storage directory (empty = ~/.aidchat/history)
	Path string `toml:"path" yaml:"path" json:"path"`
	// Slot is the key the conversation is stored under
	Slot string `toml:"slot" yaml:"slot" json:"slot"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `toml:"level" yaml:"level" json:"level"`
	// File receives log output (empty = ~/.aidchat/aidchat.log, "-" = stderr)
	File string `toml:"file" yaml:"file" json:"file"`
	// Format is "text" or "json"
	Format string `toml:"format" yaml:"format" json:"format"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" yaml:"addr" json:"addr"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" yaml:"theme" json:"theme"`
	// WordWrap is the maximum bubble width in columns (0 = terminal width)
	WordWrap int `toml:"word_wrap" yaml:"word_wrap" json:"word_wrap"`
	// RenderMarkdown renders assistant replies with glamour
	RenderMarkdown bool `toml:"render_markdown" yaml:"render_markdown" json:"render_markdown"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",
		Remote: RemoteConfig{
			Provider:     "gemini",
			WebSearch:    true,
			Instructions: DefaultInstructions,
			TimeoutSecs:  30,
		},
		Chat: ChatConfig{
			MinIntervalMs: 1000,
		},
		Storage: StorageConfig{
			Backend: "file",
			Slot:    "conversation",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		UI: UIConfig{
			Theme:          "auto",
			RenderMarkdown: true,
		},
	}
}

// MinInterval returns the submission interval as a duration.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Chat.MinIntervalMs) * time.Millisecond
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the aidchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".aidchat"), nil
}

// CandidatePaths returns the config files Load tries, in order.
func CandidatePaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.json"),
	}, nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
		if dir, err := ConfigDir(); err == nil {
			paths = append(paths, filepath.Join(dir, ".env"))
		}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from the first config file that exists (TOML,
// then YAML, then JSON) and falls back to defaults. Environment overrides
// are applied last.
func Load() (*Config, error) {
	paths, err := CandidatePaths()
	if err == nil {
		for _, p := range paths {
			if _, statErr := os.Stat(p); statErr == nil {
				return LoadFromPath(p)
			}
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file with full
// validation. The format follows the file extension; TOML is the default.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// SECURITY: Check and fix file permissions if needed
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := decode(cfg, path, data); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile decodes a config file without environment overrides, for
// editing it in place. A missing file reads as defaults.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := decode(cfg, path, data); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// ActivePath returns the config file Load reads: the first candidate that
// exists, or config.toml when none does.
func ActivePath() (string, error) {
	paths, err := CandidatePaths()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return paths[0], nil
}

func decode(cfg *Config, path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML: %w", err)
		}
	}
	return nil
}

// SetDefaults fills in zero values that have a non-zero default.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Remote.Provider == "" {
		c.Remote.Provider = d.Remote.Provider
	}
	if strings.TrimSpace(c.Remote.Instructions) == "" {
		c.Remote.Instructions = d.Remote.Instructions
	}
	if c.Remote.TimeoutSecs == 0 {
		c.Remote.TimeoutSecs = d.Remote.TimeoutSecs
	}
	if c.Chat.MinIntervalMs == 0 {
		c.Chat.MinIntervalMs = d.Chat.MinIntervalMs
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Slot == "" {
		c.Storage.Slot = d.Storage.Slot
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = d.Metrics.Addr
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to ~/.aidchat/config.toml.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, filepath.Join(dir, "config.toml"))
}

// SaveToPath writes the configuration in the format named by the file
// extension.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveToPath(cfg *Config, path string) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		buf.Write(data)
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		enc.Close()
	default:
		fmt.Fprintln(&buf, "# aidchat configuration file")
		fmt.Fprintln(&buf, "# Generated by aidchat - edit with care")
		fmt.Fprintln(&buf)
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate validates the configuration and returns ValidateErrors listing
// every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !oneOf(c.Remote.Provider, Providers...) {
		add("remote.provider", "invalid provider '%s', must be one of: %s", c.Remote.Provider, strings.Join(Providers, ", "))
	}
	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("remote.base_url", "invalid URL '%s', must be an absolute http(s) URL", c.Remote.BaseURL)
		}
	}
	if c.Remote.TimeoutSecs < 0 || c.Remote.TimeoutSecs > 600 {
		add("remote.timeout_secs", "must be between 0 and 600, got %d", c.Remote.TimeoutSecs)
	}

	if c.Chat.MinIntervalMs < 0 || c.Chat.MinIntervalMs > 60000 {
		add("chat.min_interval_ms", "must be between 0 and 60000, got %d", c.Chat.MinIntervalMs)
	}

	if !oneOf(c.Storage.Backend, "file", "sqlite", "pebble") {
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, pebble", c.Storage.Backend)
	}
	if strings.ContainsAny(c.Storage.Slot, `/\ `) {
		add("storage.slot", "slot name '%s' must not contain path separators or spaces", c.Storage.Slot)
	}

	if !oneOf(c.Log.Level, "debug", "info", "warn", "warning", "error") {
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	if !oneOf(c.Log.Format, "text", "json") {
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr", "required when metrics are enabled")
	}

	if !oneOf(c.UI.Theme, "dark", "light", "auto") {
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}
	if c.UI.WordWrap != 0 && (c.UI.WordWrap < 20 || c.UI.WordWrap > 400) {
		add("ui.word_wrap", "must be 0 or between 20 and 400, got %d", c.UI.WordWrap)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - AIDCHAT_PROVIDER: overrides remote.provider
//   - AIDCHAT_MODEL: overrides remote.model
//   - GEMINI_API_KEY: sets remote.api_key
//   - AIDCHAT_API_KEY: sets remote.api_key (wins over GEMINI_API_KEY)
//   - AIDCHAT_BASE_URL: overrides remote.base_url
//   - AIDCHAT_WEB_SEARCH: "1"/"true" or "0"/"false"
//   - AIDCHAT_STORAGE: overrides storage.backend
//   - AIDCHAT_LOG_LEVEL: overrides log.level
//   - AIDCHAT_METRICS_ADDR: sets metrics.addr and enables metrics
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AIDCHAT_PROVIDER"); v != "" {
		c.Remote.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("AIDCHAT_MODEL"); v != "" {
		c.Remote.Model = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv("AIDCHAT_API_KEY"); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv("AIDCHAT_BASE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv("AIDCHAT_WEB_SEARCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Remote.WebSearch = b
		}
	}
	if v := os.Getenv("AIDCHAT_STORAGE"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("AIDCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("AIDCHAT_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "remote.model").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from a value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		name := strings.Split(section.Tag.Get("toml"), ",")[0]
		if section.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			f := section.Type.Field(j)
			keys = append(keys, name+"."+strings.Split(f.Tag.Get("toml"), ",")[0])
		}
	}
	return keys
}

// String returns a JSON rendering of the config for debugging.
// SECURITY: Redacts the API key.
func (c *Config) String() string {
	safe := *c
	if safe.Remote.APIKey != "" {
		safe.Remote.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
