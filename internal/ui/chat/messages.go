// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/stream"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// fragmentMsg carries the result of one Exchange.Next call.
type fragmentMsg struct {
	ex   *exchange.Exchange
	frag stream.Fragment
	more bool
	err  error
}

// nextFragment blocks for the next fragment of ex off the UI goroutine.
func nextFragment(ex *exchange.Exchange) tea.Cmd {
	return func() tea.Msg {
		frag, more, err := ex.Next()
		return fragmentMsg{ex: ex, frag: frag, more: more, err: err}
	}
}

// =============================================================================
// EXPORT MESSAGES
// =============================================================================

// exportDoneMsg reports the outcome of an export command.
type exportDoneMsg struct {
	action string
	path   string
	err    error
}

// noticeExpiredMsg clears a transient notice if it is still the current one.
type noticeExpiredMsg struct {
	id int
}
