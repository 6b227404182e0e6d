// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is a role that may appear in a conversation.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// CITATION TYPE
// =============================================================================

// Citation is a web source the assistant grounded its answer in.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Label returns the title, or the URI when the source has no title.
func (c Citation) Label() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return c.URI
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content. Text and Citations only grow while IsStreaming is true.
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`

	// Lifecycle. IsStreaming and HasError are never both true once the
	// message is terminal.
	IsStreaming bool `json:"is_streaming,omitempty"`
	HasError    bool `json:"has_error,omitempty"`

	// Performance metrics (assistant messages, not persisted)
	FirstFragment time.Duration `json:"-"`
	TotalDuration time.Duration `json:"-"`
}

// NewMessage creates a terminal message with a generated ID.
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:        NextID(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, text)
}

// NewAssistantMessage creates an empty assistant message that is streaming.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          NextID(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsTerminal reports whether the message has left the streaming state.
func (m *Message) IsTerminal() bool {
	return !m.IsStreaming
}

// IsSettled reports whether the message finished streaming without error.
func (m *Message) IsSettled() bool {
	return !m.IsStreaming && !m.HasError
}

// IsEmpty returns true if the message has no visible text.
func (m *Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == ""
}

// DisplayCitations returns the citations with duplicate URIs removed,
// keeping the first occurrence of each.
func (m *Message) DisplayCitations() []Citation {
	if len(m.Citations) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(m.Citations))
	out := make([]Citation, 0, len(m.Citations))
	for _, c := range m.Citations {
		if _, ok := seen[c.URI]; ok {
			continue
		}
		seen[c.URI] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.Citations != nil {
		c.Citations = append([]Citation(nil), m.Citations...)
	}
	return &c
}

// Equal reports whether two messages carry the same persisted state.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.ID != o.ID || m.Role != o.Role || m.Text != o.Text ||
		m.IsStreaming != o.IsStreaming || m.HasError != o.HasError ||
		!m.Timestamp.Equal(o.Timestamp) || len(m.Citations) != len(o.Citations) {
		return false
	}
	for i := range m.Citations {
		if m.Citations[i] != o.Citations[i] {
			return false
		}
	}
	return true
}

// FormatStats returns a short timing summary for a finished assistant message.
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant || m.TotalDuration == 0 {
		return ""
	}
	return formatDuration(m.TotalDuration) + " | first token " + formatDuration(m.FirstFragment)
}

// formatDuration formats a duration as "850ms" or "2.4s".
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
