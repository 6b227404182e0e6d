// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for aidchat.
//
// Supports TOML, YAML and JSON configuration files, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AIDCHAT_*, GEMINI_API_KEY)
//   - .env in the working directory, then ~/.aidchat/.env
//   - The first of ~/.aidchat/config.toml, config.yaml, config.yml, config.json
//   - Built-in defaults
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval := cfg.MinInterval()
package config
