// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream folds incremental response fragments into a message.
package stream

import (
	"strings"
	"time"

	"github.com/jeranaias/aidchat/internal/model"
)

// FallbackText replaces the text of a message whose stream ended without
// producing any content, so a terminal bubble is never blank.
const FallbackText = "I'm sorry, I wasn't able to respond just now. Please try again."

// =============================================================================
// FRAGMENT TYPE
// =============================================================================

// Fragment is one incremental piece of assistant output.
type Fragment struct {
	Text      string
	Citations []model.Citation
}

// IsEmpty reports whether the fragment carries neither text nor citations.
func (f Fragment) IsEmpty() bool {
	return f.Text == "" && len(f.Citations) == 0
}

// =============================================================================
// ASSEMBLER STATE
// =============================================================================

// State is the lifecycle position of an Assembler.
type State int

const (
	StateStreaming State = iota
	StateCompleted
	StateFailed
	StateDetached
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler is the single writer of one streaming message. Fragments are
// appended in the order Apply is called; citations accumulate without
// deduplication. Once the assembler reaches a terminal state every further
// call is a no-op.
//
// An Assembler is owned by one goroutine and is not safe for concurrent use.
type Assembler struct {
	msg   *model.Message
	state State

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	text      strings.Builder
	fragments int

	now        func() time.Time
	start      time.Time
	firstToken time.Time
}

// NewAssembler binds an assembler to a streaming message. Any text the
// message already holds is kept as the prefix.
func NewAssembler(msg *model.Message) *Assembler {
	return NewAssemblerWithClock(msg, time.Now)
}

// NewAssemblerWithClock is NewAssembler with an injectable clock.
func NewAssemblerWithClock(msg *model.Message, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	a := &Assembler{
		msg:   msg,
		now:   now,
		start: now(),
	}
	a.text.WriteString(msg.Text)
	msg.IsStreaming = true
	msg.HasError = false
	return a
}

// Message returns the bound message.
func (a *Assembler) Message() *model.Message {
	return a.msg
}

// State returns the current lifecycle state.
func (a *Assembler) State() State {
	return a.state
}

// Active reports whether fragments are still being accepted.
func (a *Assembler) Active() bool {
	return a.state == StateStreaming
}

// Apply appends a fragment. It returns false if the fragment was discarded
// because the assembler is no longer streaming.
func (a *Assembler) Apply(f Fragment) bool {
	if a.state != StateStreaming {
		return false
	}
	if f.Text != "" {
		if a.firstToken.IsZero() {
			a.firstToken = a.now()
		}
		a.text.WriteString(f.Text)
		a.msg.Text = a.text.String()
	}
	if len(f.Citations) > 0 {
		a.msg.Citations = append(a.msg.Citations, f.Citations...)
	}
	a.fragments++
	return true
}

// Complete marks the stream as finished. The final text and citations stand
// as accumulated. Returns false if the assembler was already terminal.
func (a *Assembler) Complete() bool {
	if a.state != StateStreaming {
		return false
	}
	a.state = StateCompleted
	a.finish(false)
	return true
}

// Fail marks the stream as failed, keeping any partial text. A message with
// no text receives FallbackText. Returns false if already terminal.
func (a *Assembler) Fail() bool {
	if a.state != StateStreaming {
		return false
	}
	a.state = StateFailed
	a.msg.HasError = true
	a.finish(true)
	return true
}

// Detach tears the assembler down before the stream ends. Later calls are
// silently discarded. The message is left terminal and errored, since its
// text is a cut-off reply; an empty message receives FallbackText.
func (a *Assembler) Detach() {
	if a.state != StateStreaming {
		return
	}
	a.state = StateDetached
	a.msg.HasError = true
	a.finish(true)
}

// Text returns the text accumulated so far.
func (a *Assembler) Text() string {
	return a.text.String()
}

// FragmentCount returns the number of fragments applied.
func (a *Assembler) FragmentCount() int {
	return a.fragments
}

func (a *Assembler) finish(fallback bool) {
	a.msg.IsStreaming = false
	if fallback && strings.TrimSpace(a.msg.Text) == "" {
		a.msg.Text = FallbackText
	}
	end := a.now()
	a.msg.TotalDuration = end.Sub(a.start)
	if !a.firstToken.IsZero() {
		a.msg.FirstFragment = a.firstToken.Sub(a.start)
	}
}
