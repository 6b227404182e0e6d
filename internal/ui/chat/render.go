// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/ui/styles"
	"github.com/jeranaias/aidchat/internal/util"
)

// renderer turns message text into terminal lines at the current width.
type renderer struct {
	theme    *styles.Theme
	markdown bool
	maxWrap  int
	width    int
	tr       *glamour.TermRenderer

	// PERFORMANCE: settled messages never change, so their output is
	// cached until the width changes
	cache map[string]string
}

func newRenderer(theme *styles.Theme, markdown bool, maxWrap int) *renderer {
	return &renderer{
		theme:    theme,
		markdown: markdown,
		maxWrap:  maxWrap,
		width:    76,
		cache:    make(map[string]string),
	}
}

// setWidth changes the wrap width, dropping cached output when it differs.
func (r *renderer) setWidth(w int) {
	if r.maxWrap > 0 && w > r.maxWrap {
		w = r.maxWrap
	}
	if w < 10 {
		w = 10
	}
	if w == r.width {
		return
	}
	r.width = w
	r.tr = nil
	clear(r.cache)
}

// text renders the body of msg. Streaming text is only wrapped; markdown
// is applied once the message settles.
func (r *renderer) text(msg *model.Message) string {
	if msg.IsStreaming || !r.markdown || msg.Role != model.RoleAssistant {
		return util.WrapWidth(msg.Text, r.width)
	}
	if out, ok := r.cache[msg.ID]; ok {
		return out
	}
	out := r.markdownText(msg.Text)
	r.cache[msg.ID] = out
	return out
}

func (r *renderer) markdownText(text string) string {
	if r.tr == nil {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.theme.GlamourStyle()),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			return util.WrapWidth(text, r.width)
		}
		r.tr = tr
	}
	out, err := r.tr.Render(text)
	if err != nil {
		return util.WrapWidth(text, r.width)
	}
	return strings.Trim(out, "\n")
}

// forget drops cached output, used when the conversation is reset.
func (r *renderer) forget() {
	clear(r.cache)
}
