// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyStreaming is returned when a second streaming message is appended.
var ErrAlreadyStreaming = errors.New("a message is already streaming")

// ErrIndexOutOfRange is returned by Truncate and At for invalid positions.
var ErrIndexOutOfRange = errors.New("message index out of range")

// Persister stores the message sequence durably. Save overwrites whatever
// was stored before.
type Persister interface {
	Save(msgs []*Message) error
	Clear() error
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered log of exchanged messages. It is append-only
// apart from truncation on retry and a full reset. Every change to the
// sequence is written through to the Persister before the method returns.
//
// A Conversation is not safe for concurrent use; it is owned by a single
// goroutine (the UI loop or the REPL loop).
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time

	messages  []*Message
	persister Persister
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + NextID(),
		CreatedAt: now,
		UpdatedAt: now,
		messages:  make([]*Message, 0),
	}
}

// NewConversationFrom creates a conversation rehydrated from stored messages.
// Stored messages are taken as-is; the persister is not written.
func NewConversationFrom(msgs []*Message, p Persister) *Conversation {
	c := NewConversation()
	c.messages = append(c.messages, msgs...)
	c.persister = p
	c.updateTitle()
	return c
}

// SetPersister attaches the durable store.
func (c *Conversation) SetPersister(p Persister) {
	c.persister = p
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the end of the log and persists the sequence.
// Only one message may be streaming at a time.
func (c *Conversation) Append(msg *Message) error {
	if msg.IsStreaming && c.Streaming() != nil {
		return ErrAlreadyStreaming
	}
	c.messages = append(c.messages, msg)
	c.touch()
	c.updateTitle()
	return c.Persist()
}

// Truncate keeps the first n messages and discards the rest.
func (c *Conversation) Truncate(n int) error {
	if n < 0 || n > len(c.messages) {
		return fmt.Errorf("truncate to %d of %d: %w", n, len(c.messages), ErrIndexOutOfRange)
	}
	for i := n; i < len(c.messages); i++ {
		c.messages[i] = nil
	}
	c.messages = c.messages[:n]
	c.touch()
	if n == 0 {
		c.Title = ""
	}
	return c.Persist()
}

// Reset removes every message and clears the durable slot.
func (c *Conversation) Reset() error {
	c.messages = make([]*Message, 0)
	c.Title = ""
	c.touch()
	if c.persister == nil {
		return nil
	}
	return c.persister.Clear()
}

// Persist writes the current sequence through to the persister. It is
// called automatically on every sequence change and by owners after they
// finalize a streaming message.
func (c *Conversation) Persist() error {
	if c.persister == nil {
		return nil
	}
	return c.persister.Save(c.messages)
}

// =============================================================================
// QUERIES
// =============================================================================

// Messages returns the live message slice. Callers must not modify it.
func (c *Conversation) Messages() []*Message {
	return c.messages
}

// Snapshot returns deep copies of all messages.
func (c *Conversation) Snapshot() []*Message {
	out := make([]*Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.messages) == 0
}

// At returns the message at index i.
func (c *Conversation) At(i int) (*Message, error) {
	if i < 0 || i >= len(c.messages) {
		return nil, ErrIndexOutOfRange
	}
	return c.messages[i], nil
}

// Last returns the most recent message, or nil if empty.
func (c *Conversation) Last() *Message {
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

// LastAssistant returns the most recent assistant message.
func (c *Conversation) LastAssistant() *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i]
		}
	}
	return nil
}

// Streaming returns the message that is currently streaming, if any.
func (c *Conversation) Streaming() *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].IsStreaming {
			return c.messages[i]
		}
	}
	return nil
}

// IndexOf returns the position of the message with the given ID, or -1.
func (c *Conversation) IndexOf(id string) int {
	for i, m := range c.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// updateTitle derives a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

func (c *Conversation) touch() {
	c.UpdatedAt = time.Now()
}
