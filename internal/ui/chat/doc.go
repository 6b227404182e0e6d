// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
//
// The Model renders the conversation owned by an exchange.Controller and
// turns key presses into controller calls. Streaming runs as a chain of
// tea.Cmds: each one blocks in Exchange.Next off the UI goroutine and
// returns a fragmentMsg, which Update applies before asking for the next
// fragment. Every conversation mutation therefore happens inside Update.
//
// Focus moves between three areas with Tab:
//   - the input line (Enter submits, slash commands start with "/")
//   - the answer sheet when the assistant asked several yes/no questions
//   - the chips row holding quick replies and extracted options
package chat
