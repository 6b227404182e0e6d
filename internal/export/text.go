// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"strings"

	"github.com/jeranaias/aidchat/internal/model"
)

// MessageSeparator sits between messages in the plain-text form.
const MessageSeparator = "\n\n---\n\n"

// PlainText renders messages as "<Role>: <text>" blocks joined by
// MessageSeparator. A message with citations gets a trailing
// "Sources: title (uri), ..." line listing each source once.
func PlainText(msgs []*model.Message) string {
	blocks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		blocks = append(blocks, textBlock(msg))
	}
	return strings.Join(blocks, MessageSeparator)
}

func textBlock(msg *model.Message) string {
	var sb strings.Builder
	sb.WriteString(msg.Role.DisplayName())
	sb.WriteString(": ")
	sb.WriteString(msg.Text)

	if cites := msg.DisplayCitations(); len(cites) > 0 {
		sources := make([]string, len(cites))
		for i, c := range cites {
			sources[i] = c.Label() + " (" + c.URI + ")"
		}
		sb.WriteString("\nSources: ")
		sb.WriteString(strings.Join(sources, ", "))
	}
	return sb.String()
}

// =============================================================================
// TEXT EXPORTER
// =============================================================================

// TextExporter writes PlainText output.
type TextExporter struct{}

// NewTextExporter creates a plain-text exporter.
func NewTextExporter() *TextExporter {
	return &TextExporter{}
}

// Export renders the messages with PlainText.
func (e *TextExporter) Export(msgs []*model.Message) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, ErrEmpty
	}
	return []byte(PlainText(msgs) + "\n"), nil
}

func (e *TextExporter) FileExtension() string { return ".txt" }

func (e *TextExporter) MimeType() string { return "text/plain" }
