// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/remote"
)

func TestMain(m *testing.M) {
	ForceColorsEnabled(false)
	lipgloss.SetColorProfile(GetColorProfile())
	os.Exit(m.Run())
}

// scriptReader feeds lines to the REPL and records prefilled prompts.
type scriptReader struct {
	lines       []string
	suggestions []string
	history     []string
}

func (s *scriptReader) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptReader) PromptWithSuggestion(prompt, text string, _ int) (string, error) {
	s.suggestions = append(s.suggestions, text)
	return s.Prompt(prompt)
}

func (s *scriptReader) AppendHistory(item string) {
	s.history = append(s.history, item)
}

type replHarness struct {
	svc  *remote.Scripted
	ctrl *exchange.Controller
	in   *scriptReader
	out  *bytes.Buffer
	repl *REPL
}

func newREPLHarness(t *testing.T, minInterval time.Duration, lines []string, scripts ...remote.Script) *replHarness {
	t.Helper()
	h := &replHarness{
		svc: remote.NewScripted(scripts...),
		in:  &scriptReader{lines: lines},
		out: &bytes.Buffer{},
	}
	h.ctrl = exchange.New(model.NewConversation(), h.svc, exchange.Options{MinInterval: minInterval})
	h.repl = NewREPL(REPLConfig{
		Controller: h.ctrl,
		In:         h.in,
		Out:        h.out,
		Export:     &export.Options{OutputDir: t.TempDir(), Title: "test"},
		Stats:      func() string { return "1 exchange" },
		Quiet:      true,
		Interrupt:  context.WithCancel,
	})
	return h
}

func (h *replHarness) run(t *testing.T) string {
	t.Helper()
	require.NoError(t, h.repl.Run(context.Background()))
	return h.out.String()
}

// ===== REPL TESTS (chat.go) =====

func TestREPL_StreamsReply(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, []string{"Hello"},
		remote.Text("Hi there, how can I help?"))

	out := h.run(t)
	require.Contains(t, out, "Assistant: Hi there, how can I help?")
	require.Contains(t, out, "[1] Tell me more")
	require.Equal(t, []string{"Hello"}, h.svc.Sent())
	require.Equal(t, []string{"Hello"}, h.in.history)
	require.Equal(t, 2, h.ctrl.Conversation().Len())
}

func TestREPL_WelcomeUnlessQuiet(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, nil)
	h.repl.quiet = false
	require.Contains(t, h.run(t), "/help")
}

func TestREPL_NumberSendsChoice(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, []string{"what programs?", "2"},
		remote.Text("Programs:\n1. SNAP food benefits\n2. LIHEAP energy help"),
		remote.Text("Sure."))

	out := h.run(t)
	require.Contains(t, out, "[2] LIHEAP energy help")
	require.Equal(t, []string{"what programs?", "LIHEAP energy help"}, h.svc.Sent())
}

func TestREPL_NumberOutOfRangeIsText(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, []string{"7"}, remote.Text("Seven what?"))
	h.run(t)
	require.Equal(t, []string{"7"}, h.svc.Sent())
}

func TestREPL_AnswerSendsComposedReply(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond,
		[]string{"help me", "/answer y", "/answer y n"},
		remote.Text("A few questions:\n1. Do you rent your home?\n2. Do you have children?"),
		remote.Text("Thanks."))

	out := h.run(t)
	require.Contains(t, out, "Answer all 2 questions at once with /answer")
	require.Contains(t, out, "Give one y or n for each of the 2 questions.")
	require.Equal(t, []string{
		"help me",
		"Do you rent your home? Yes\nDo you have children? No",
	}, h.svc.Sent())
}

func TestREPL_AnswerWithoutQuestions(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, []string{"/answer y n"})
	require.Contains(t, h.run(t), "There are no questions to answer.")
}

func TestParseAnswers(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{[]string{"y", "n", "y"}, 3},
		{[]string{"yny"}, 3},
		{[]string{"yes,", "no"}, 2},
		{[]string{"Y", "N"}, 2},
		{[]string{"y", "maybe"}, 0},
		{nil, 0},
	}
	for _, tt := range tests {
		got := parseAnswers(tt.args)
		if len(got) != tt.want {
			t.Errorf("parseAnswers(%q) = %v, want %d values", tt.args, got, tt.want)
		}
	}
}

func TestREPL_RetryPrefillsInput(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond,
		[]string{"first question", "/retry", "edited question"},
		remote.Text("One."), remote.Text("Two."))

	out := h.run(t)
	require.Contains(t, out, "Edit your message and press Enter to resend.")
	require.Equal(t, []string{"first question"}, h.in.suggestions)
	require.Equal(t, []string{"first question", "edited question"}, h.svc.Sent())
	require.Equal(t, 2, h.ctrl.Conversation().Len())
}

func TestREPL_RetryWithNothingSent(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, []string{"/retry"})
	require.Contains(t, h.run(t), "Nothing to retry.")
}

func TestREPL_RateLimitedKeepsInput(t *testing.T) {
	h := newREPLHarness(t, time.Hour, []string{"one", "two"},
		remote.Text("First."), remote.Text("Second."))

	out := h.run(t)
	require.Contains(t, out, "Not sent. Wait a moment and try again.")
	require.Equal(t, []string{"two"}, h.in.suggestions)
	require.Equal(t, []string{"one"}, h.svc.Sent())
}

func TestREPL_FailureShowsBanner(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, []string{"hi"},
		remote.Text("partial ").ThenFail(errors.New("stream reset")))

	out := h.run(t)
	require.Contains(t, out, exchange.TextRemoteFailure)
	require.Nil(t, h.ctrl.Banner(), "banner is dismissed once printed")
}

func TestREPL_InitFailureKeepsInput(t *testing.T) {
	h := newREPLHarness(t, time.Nanosecond, []string{"hi"})
	h.svc.FailOpen(remote.ErrNotConfigured)

	out := h.run(t)
	require.Contains(t, out, exchange.TextInitialization)
	require.Equal(t, []string{"hi"}, h.in.suggestions)
	require.Zero(t, h.ctrl.Conversation().Len())
}

func TestREPL_Commands(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "reset clears",
			lines: []string{"hi", "/reset", "/history"},
			want:  []string{"[Conversation cleared]", "No messages yet."},
		},
		{
			name:  "history prints transcript",
			lines: []string{"hi", "/history"},
			want:  []string{"You: hi", "Assistant: hello"},
		},
		{
			name:  "unknown command suggests",
			lines: []string{"/hlep"},
			want:  []string{"Unknown command /hlep, did you mean /help?"},
		},
		{
			name:  "unknown command without match",
			lines: []string{"/zzzzzzzz"},
			want:  []string{"type /help"},
		},
		{
			name:  "help lists commands",
			lines: []string{"/?"},
			want:  []string{"/answer", "/retry", "/email"},
		},
		{
			name:  "stats",
			lines: []string{"/stats"},
			want:  []string{"1 exchange"},
		},
		{
			name:  "save writes a file",
			lines: []string{"hi", "/save"},
			want:  []string{"Saved to "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newREPLHarness(t, time.Nanosecond, tt.lines, remote.Text("hello"))
			out := h.run(t)
			for _, w := range tt.want {
				require.Contains(t, out, w)
			}
		})
	}
}

func TestREPL_QuitStopsReading(t *testing.T) {
	for _, word := range []string{"/quit", "/q", "exit", "QUIT"} {
		t.Run(word, func(t *testing.T) {
			h := newREPLHarness(t, time.Nanosecond, []string{word, "hi"}, remote.Text("hello"))
			h.run(t)
			require.Empty(t, h.svc.Sent())
			require.Equal(t, []string{"hi"}, h.in.lines)
		})
	}
}

// ===== ASK TESTS (ask.go) =====

func TestReadQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		stdin   string
		tty     bool
		want    string
		wantErr bool
	}{
		{name: "argument", query: "  What is SNAP? ", want: "What is SNAP?"},
		{name: "stdin", stdin: "What is WIC?\n", want: "What is WIC?"},
		{name: "dash reads stdin", query: "-", stdin: "Heating help", want: "Heating help"},
		{name: "terminal without query", tty: true, wantErr: true},
		{name: "empty stdin", stdin: "  \n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readQuery(tt.query, strings.NewReader(tt.stdin), tt.tty)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoQuery)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func newAskController(scripts ...remote.Script) *exchange.Controller {
	return exchange.New(model.NewConversation(), remote.NewScripted(scripts...), exchange.Options{})
}

func TestAsk_Text(t *testing.T) {
	ctrl := newAskController(remote.Text("SNAP helps buy food.").
		WithCitations(model.Citation{URI: "https://www.fns.usda.gov/snap", Title: "SNAP"}))

	var buf bytes.Buffer
	require.NoError(t, Ask(context.Background(), ctrl, "What is SNAP?", &buf, false))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "SNAP helps buy food.\n"), "got %q", out)
	require.Contains(t, out, "Sources:")
	require.Contains(t, out, "1. SNAP  https://www.fns.usda.gov/snap")
}

func TestAsk_JSON(t *testing.T) {
	ctrl := newAskController(remote.Text("WIC supports mothers and young children."))

	var buf bytes.Buffer
	require.NoError(t, Ask(context.Background(), ctrl, "What is WIC?", &buf, true))

	var res AskResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	require.Equal(t, "What is WIC?", res.Question)
	require.Equal(t, "WIC supports mothers and young children.", res.Answer)
	require.Empty(t, res.Error)
}

func TestAsk_JSONFailure(t *testing.T) {
	ctrl := newAskController(remote.Text("partial ").ThenFail(remote.ErrRateLimited))

	var buf bytes.Buffer
	err := Ask(context.Background(), ctrl, "hi", &buf, true)
	require.Error(t, err)

	var res AskResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	require.Equal(t, "rate_limited", res.ErrorKind)
	require.NotEmpty(t, res.Error)
}

func TestAsk_Blank(t *testing.T) {
	var buf bytes.Buffer
	err := Ask(context.Background(), newAskController(), "   ", &buf, false)
	require.ErrorIs(t, err, ErrNoQuery)
}
