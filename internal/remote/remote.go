// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package remote defines the contract between the chat core and a hosted
// language-model service, plus the errors every provider maps onto.
//
// A Service opens Sessions. A Session owns its conversation history on the
// provider side and streams one reply at a time as a lazy sequence of
// fragments. The sequence does no work until it is ranged over, and
// cancelling the context passed to StreamMessage ends it early.
package remote

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/jeranaias/aidchat/internal/stream"
)

// Fragment is one incremental piece of a streamed reply.
type Fragment = stream.Fragment

// SessionConfig is applied once when a session is opened.
type SessionConfig struct {
	// Instructions is the behavioral instruction set sent with every turn.
	Instructions string
	// WebSearch enables provider-side grounding where supported.
	WebSearch bool
	// Model overrides the provider's default model when non-empty.
	Model string
}

// Service opens sessions with a hosted model.
type Service interface {
	OpenSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one ongoing conversation with the remote service.
//
// StreamMessage sends text as the next user turn. The returned sequence
// yields fragments in arrival order. A failure is reported once as a
// non-nil error, after which the sequence ends. A session handles one
// message at a time.
type Session interface {
	ID() string
	StreamMessage(ctx context.Context, text string) iter.Seq2[Fragment, error]
	Close() error
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// Turn is one entry of provider-side history.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// History is the turn log a session replays to stateless HTTP APIs.
// Only completed exchanges are committed; a failed reply leaves the
// history as it was before the user turn.
type History struct {
	turns []Turn
}

// Turns returns the committed turns followed by the pending user text.
func (h *History) Turns(pending string) []Turn {
	out := make([]Turn, 0, len(h.turns)+1)
	out = append(out, h.turns...)
	return append(out, Turn{Role: "user", Text: pending})
}

// Commit records a finished exchange.
func (h *History) Commit(user, assistant string) {
	h.turns = append(h.turns,
		Turn{Role: "user", Text: user},
		Turn{Role: "assistant", Text: assistant},
	)
}

// Len returns the number of committed turns.
func (h *History) Len() int {
	return len(h.turns)
}
