// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/stream"
)

// DefaultKey is the slot key holding the conversation.
const DefaultKey = "conversation"

// formatVersion is written into every document.
const formatVersion = 1

// ErrCorrupt marks stored data that could not be decoded.
var ErrCorrupt = errors.New("stored conversation is corrupt")

// =============================================================================
// SERIALIZED FORM
// =============================================================================

// StoredMessage is the on-disk representation of a message.
type StoredMessage struct {
	ID          string           `json:"id"`
	Role        string           `json:"role"`
	Text        string           `json:"text"`
	Timestamp   time.Time        `json:"timestamp"`
	Citations   []model.Citation `json:"citations,omitempty"`
	IsStreaming bool             `json:"is_streaming,omitempty"`
	HasError    bool             `json:"has_error,omitempty"`

	// Statistics (assistant messages only)
	DurationMs int64 `json:"duration_ms,omitempty"`
	TTFTMs     int64 `json:"ttft_ms,omitempty"`
}

// Document is the full value stored under the history key.
type Document struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Messages []StoredMessage `json:"messages"`
}

// FromMessage converts a model message for storage.
func FromMessage(m *model.Message) StoredMessage {
	return StoredMessage{
		ID:          m.ID,
		Role:        string(m.Role),
		Text:        m.Text,
		Timestamp:   m.Timestamp,
		Citations:   m.Citations,
		IsStreaming: m.IsStreaming,
		HasError:    m.HasError,
		DurationMs:  m.TotalDuration.Milliseconds(),
		TTFTMs:      m.FirstFragment.Milliseconds(),
	}
}

// ToMessage converts a stored message back to a model message.
func (sm StoredMessage) ToMessage() *model.Message {
	msg := &model.Message{
		ID:            sm.ID,
		Role:          model.Role(sm.Role),
		Text:          sm.Text,
		Timestamp:     sm.Timestamp,
		IsStreaming:   sm.IsStreaming,
		HasError:      sm.HasError,
		TotalDuration: time.Duration(sm.DurationMs) * time.Millisecond,
		FirstFragment: time.Duration(sm.TTFTMs) * time.Millisecond,
	}
	if len(sm.Citations) > 0 {
		msg.Citations = append([]model.Citation(nil), sm.Citations...)
	}
	return msg
}

// Encode serializes msgs as a versioned document.
func Encode(msgs []*model.Message) ([]byte, error) {
	doc := Document{
		Version:  formatVersion,
		SavedAt:  time.Now(),
		Messages: make([]StoredMessage, len(msgs)),
	}
	for i, m := range msgs {
		doc.Messages[i] = FromMessage(m)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a document. Messages with an unknown role or no ID make the
// whole document corrupt.
func Decode(data []byte) ([]*model.Message, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)
	}
	msgs := make([]*model.Message, 0, len(doc.Messages))
	for i, sm := range doc.Messages {
		msg := sm.ToMessage()
		if msg.ID == "" || !msg.Role.Valid() {
			return nil, fmt.Errorf("%w: message %d is invalid", ErrCorrupt, i)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// History persists one conversation under a slot key. It implements
// model.Persister.
type History struct {
	slot     Slot
	key      string
	logger   *slog.Logger
	fallback string
}

// NewHistory creates a history over slot. An empty key uses DefaultKey and a
// nil logger discards output.
func NewHistory(slot Slot, key string, logger *slog.Logger) *History {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &History{slot: slot, key: key, logger: logger, fallback: stream.FallbackText}
}

// WithFallbackText sets the text given to interrupted messages on load.
func (h *History) WithFallbackText(text string) *History {
	if text != "" {
		h.fallback = text
	}
	return h
}

// Key returns the slot key.
func (h *History) Key() string {
	return h.key
}

// Load reads the stored conversation. It never fails: missing data reads as
// empty, and unreadable data is logged and also reads as empty.
func (h *History) Load() []*model.Message {
	msgs, err := h.LoadStrict()
	if err != nil {
		h.logger.Warn("discarding stored conversation",
			"kind", "storage_parse_failure", "key", h.key, "error", err)
		return []*model.Message{}
	}
	return msgs
}

// LoadStrict is Load with the error returned. Missing data is not an error.
// Messages left streaming (the process died mid-reply) come back terminal
// and errored.
func (h *History) LoadStrict() ([]*model.Message, error) {
	data, err := h.slot.Get(h.key)
	if errors.Is(err, ErrNotFound) {
		return []*model.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	msgs, err := Decode(data)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.IsStreaming {
			m.IsStreaming = false
			m.HasError = true
			if m.IsEmpty() {
				m.Text = h.fallback
			}
		}
	}
	return msgs, nil
}

// Save overwrites the stored conversation.
func (h *History) Save(msgs []*model.Message) error {
	data, err := Encode(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	return h.slot.Put(h.key, data)
}

// Clear deletes the stored conversation.
func (h *History) Clear() error {
	return h.slot.Delete(h.key)
}

var _ model.Persister = (*History)(nil)
