// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes shared by all commands.
//
// STANDARDIZED PATTERN:
//   - Commands return errors, they never print and return nil
//   - main displays the error once and exits with GetExitCode
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/aidchat/internal/config"
	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/remote"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the assistant could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates there was nothing to work on
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitRateLimited indicates the assistant refused the request for now
	ExitRateLimited = 9
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError carries a user-facing message and the underlying cause.
// Error returns only the message.
type CommandError struct {
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError reports a command line that could not be understood.
type UsageError struct {
	Message    string
	Suggestion string
}

func (e *UsageError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (did you mean %q?)", e.Message, e.Suggestion)
	}
	return e.Message
}

// UnknownCommand returns the usage error for an unrecognized command word.
func UnknownCommand(name string) error {
	return &UsageError{
		Message:    "unknown command: " + name,
		Suggestion: SuggestCommand(name, topCommands),
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as a JSON object in jsonMode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		out := map[string]any{
			"error":      err.Error(),
			"error_type": errorType(err),
			"success":    false,
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitUsageError:
		return "usage_error"
	case ExitConfigError:
		return "config_error"
	case ExitNetworkError:
		return "connection_error"
	case ExitNotFoundError:
		return "not_found_error"
	case ExitTimeoutError:
		return "timeout_error"
	case ExitRateLimited:
		return "rate_limited"
	default:
		return "generic_error"
	}
}

// GetExitCode determines the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var validateErrs config.ValidateErrors
	var initErr *exchange.InitError
	switch {
	case errors.As(err, &usageErr), errors.Is(err, ErrNoQuery):
		return ExitUsageError
	case errors.As(err, &validateErrs):
		return ExitConfigError
	case errors.Is(err, remote.ErrRateLimited):
		return ExitRateLimited
	case errors.As(err, &initErr), errors.Is(err, remote.ErrNotConfigured):
		return ExitNetworkError
	case errors.Is(err, export.ErrEmpty):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	}
	return ExitGeneralError
}
