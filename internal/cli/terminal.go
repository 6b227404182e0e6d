// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for the CLI.

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/aidchat/internal/util"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

func isTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool { return isTerminal(os.Stdin) }

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool { return isTerminal(os.Stdout) }

// Interactive reports whether the full-screen UI can run. Piping either end
// selects line mode.
func Interactive() bool {
	return IsTTY() && IsStdoutTTY()
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const (
	// DefaultTerminalWidth is used when stdout has no size.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the narrowest width text is wrapped to.
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the width of stdout in columns, clamped below at
// MinTerminalWidth.
func GetTerminalWidth() int {
	cols, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols <= 0 {
		return DefaultTerminalWidth
	}
	return max(cols, MinTerminalWidth)
}

// WrapText wraps text to width display columns less a two-column margin.
// Zero or less means the terminal width.
func WrapText(text string, width int) string {
	if width <= 0 {
		width = GetTerminalWidth()
	}
	if width > 10 {
		width -= 2
	}
	return util.WrapWidth(text, width)
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

var colors struct {
	once    sync.Once
	enabled bool
}

// colorsWanted applies https://no-color.org/: NO_COLOR beats FORCE_COLOR,
// and with neither set a terminal decides.
func colorsWanted(getenv func(string) string, tty bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case getenv("FORCE_COLOR") != "":
		return true
	default:
		return tty
	}
}

// ColorsEnabled reports whether output may carry ANSI colors. The answer is
// computed once per process.
func ColorsEnabled() bool {
	colors.once.Do(func() {
		colors.enabled = colorsWanted(os.Getenv, IsStdoutTTY())
	})
	return colors.enabled
}

// ForceColorsEnabled pins the result of ColorsEnabled. Used by tests.
func ForceColorsEnabled(enabled bool) {
	colors.once = sync.Once{}
	colors.once.Do(func() { colors.enabled = enabled })
}

// GetColorProfile is the termenv profile matching ColorsEnabled.
func GetColorProfile() termenv.Profile {
	if ColorsEnabled() {
		return termenv.ColorProfile()
	}
	return termenv.Ascii
}
