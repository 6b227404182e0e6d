// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package suggest derives reply suggestions and per-question answer state
// from the most recent assistant message.
package suggest

import (
	"strings"

	"github.com/jeranaias/aidchat/internal/model"
)

// MaxQuickReplies caps the number of suggestions offered at once.
const MaxQuickReplies = 4

// Reply is one suggested response. Value is the text submitted when chosen.
type Reply struct {
	Label string
	Value string
}

// Fixed suggestions.
var (
	ReplyYes      = Reply{Label: "Yes", Value: "Yes"}
	ReplyNo       = Reply{Label: "No", Value: "No"}
	ReplyTellMore = Reply{Label: "Tell me more", Value: "Can you tell me more about that?"}
	ReplyHelp     = Reply{Label: "I need help understanding", Value: "Can you explain this in simpler terms?"}
)

var (
	yesNoPhrases = []string{
		"do you", "does it", "is it", "are you", "can you", "would you", "have you",
	}
	helpWords = []string{"form", "application", "grant"}
)

// QuickReplies returns the suggestions for the last message of msgs. The
// result is empty while a response is in flight, when the last message is
// not a finished assistant message, or when no heuristic applies.
func QuickReplies(msgs []*model.Message, processing bool) []Reply {
	if processing || len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	if last == nil || last.Role != model.RoleAssistant || !last.IsSettled() {
		return nil
	}
	return ForText(last.Text)
}

// ForText applies the suggestion heuristics to a finished message text.
// Order: yes/no pair, then elaboration, then the help request.
func ForText(text string) []Reply {
	lower := strings.ToLower(text)
	asks := strings.Contains(text, "?")

	replies := make([]Reply, 0, MaxQuickReplies)
	if asks && containsAny(lower, yesNoPhrases) {
		replies = append(replies, ReplyYes, ReplyNo)
	}
	if asks {
		replies = append(replies, ReplyTellMore)
	}
	if containsAny(lower, helpWords) {
		replies = append(replies, ReplyHelp)
	}
	if len(replies) > MaxQuickReplies {
		replies = replies[:MaxQuickReplies]
	}
	if len(replies) == 0 {
		return nil
	}
	return replies
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
