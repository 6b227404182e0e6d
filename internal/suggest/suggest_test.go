// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"errors"
	"testing"

	"github.com/jeranaias/aidchat/internal/extract"
	"github.com/jeranaias/aidchat/internal/model"
)

func assistant(text string) *model.Message {
	m := model.NewAssistantMessage()
	m.Text = text
	m.IsStreaming = false
	return m
}

func labels(replies []Reply) []string {
	out := make([]string, len(replies))
	for i, r := range replies {
		out[i] = r.Label
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// QUICK REPLY TESTS
// =============================================================================

func TestQuickReplies_Heuristics(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"yes/no question", "Do you rent your home?", []string{"Yes", "No", "Tell me more"}},
		{"case-insensitive", "ARE YOU a veteran?", []string{"Yes", "No", "Tell me more"}},
		{"open question", "Which state is your home in?", []string{"Tell me more"}},
		{"keyword without question", "You can do it if you want.", nil},
		{"help words", "Fill in the application form.", []string{"I need help understanding"}},
		{"all conditions", "Have you started the grant application?",
			[]string{"Yes", "No", "Tell me more", "I need help understanding"}},
		{"plain statement", "Thanks, that helps.", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := labels(QuickReplies([]*model.Message{assistant(tc.text)}, false))
			if !equalStrings(got, tc.want) {
				t.Errorf("QuickReplies(%q) = %v, want %v", tc.text, got, tc.want)
			}
			if len(got) > MaxQuickReplies {
				t.Errorf("got %d replies, cap is %d", len(got), MaxQuickReplies)
			}
		})
	}
}

func TestQuickReplies_Values(t *testing.T) {
	got := QuickReplies([]*model.Message{assistant("Is it for a grant?")}, false)
	if len(got) != 4 {
		t.Fatalf("got %v", got)
	}
	if got[0].Value != "Yes" || got[1].Value != "No" {
		t.Errorf("yes/no values should equal labels: %+v", got[:2])
	}
	if got[2].Value != "Can you tell me more about that?" {
		t.Errorf("elaboration value = %q", got[2].Value)
	}
	if got[3].Value != "Can you explain this in simpler terms?" {
		t.Errorf("help value = %q", got[3].Value)
	}
}

func TestQuickReplies_Empty(t *testing.T) {
	question := assistant("Do you rent your home?")
	streaming := assistant("Do you rent your home?")
	streaming.IsStreaming = true
	cutOff := assistant("Do you rent your home?")
	cutOff.HasError = true

	tests := []struct {
		name       string
		msgs       []*model.Message
		processing bool
	}{
		{"processing", []*model.Message{question}, true},
		{"no messages", nil, false},
		{"last is user", []*model.Message{question, model.NewUserMessage("Yes")}, false},
		{"streaming", []*model.Message{streaming}, false},
		{"errored", []*model.Message{cutOff}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := QuickReplies(tc.msgs, tc.processing); len(got) != 0 {
				t.Errorf("QuickReplies() = %v, want empty", got)
			}
		})
	}
}

func TestQuickReplies_Idempotent(t *testing.T) {
	msgs := []*model.Message{assistant("Would you like help with the form?")}
	first := labels(QuickReplies(msgs, false))
	second := labels(QuickReplies(msgs, false))
	if !equalStrings(first, second) {
		t.Errorf("repeated calls differ: %v vs %v", first, second)
	}
}

// =============================================================================
// ANSWER SHEET TESTS
// =============================================================================

func TestAnswerSheet(t *testing.T) {
	qs := extract.Questions("1. Do you rent your home?\n2. Do you own a vehicle?")
	sheet := NewAnswerSheet("msg-1", qs)

	if sheet.Complete() {
		t.Error("new sheet should not be complete")
	}
	if err := sheet.Set(qs[0].ID, AnswerYes); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if sheet.Complete() {
		t.Error("sheet with one answer should not be complete")
	}
	if err := sheet.Set(qs[1].ID, AnswerNo); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !sheet.Complete() {
		t.Error("sheet should be complete")
	}

	want := "Do you rent your home? Yes\nDo you own a vehicle? No"
	if got := sheet.Compose(); got != want {
		t.Errorf("Compose() = %q, want %q", got, want)
	}

	if err := sheet.Set("question-9-9", AnswerYes); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}

	sheet.Reset()
	if sheet.Answered() != 0 || sheet.Compose() != "" {
		t.Error("Reset should clear all answers")
	}
	if v, ok := sheet.Get(qs[0].ID); !ok || v != AnswerUnset {
		t.Errorf("Get after reset = %v, %v", v, ok)
	}
}

func TestAnswerSheet_Empty(t *testing.T) {
	sheet := NewAnswerSheet("m", nil)
	if sheet.Complete() {
		t.Error("a sheet without questions is never complete")
	}
}
