// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package extract derives selectable options and yes/no questions from the
// free-form text of an assistant message.
//
// The extractors are heuristics over numbered list lines. They are pure
// functions of the text and never touch the message they read from.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/aidchat/internal/model"
)

const (
	// MaxOptions is the number of options kept, in document order.
	MaxOptions = 6
	// MaxQuestions is the number of questions kept, in document order.
	MaxQuestions = 10
	// MultiQuestionThreshold is the question count that switches the reply
	// area to per-question yes/no controls.
	MultiQuestionThreshold = 2

	minLabelLen    = 3
	maxLabelLen    = 100
	minQuestionLen = 6
)

// Option is a selectable choice taken from a numbered list line.
type Option struct {
	ID    string
	Label string
	Value string
}

// Question is a yes/no question taken from a numbered interrogative line.
type Question struct {
	ID   string
	Text string
}

var (
	// A numbered line: optional emphasis, number, one of . ) : or
	// whitespace, optional emphasis, label, optional emphasis, and an
	// optional " - trailer" or ": trailer".
	optionLine = regexp.MustCompile(
		`^\s*(?:\*\*|__|\*)?\s*(\d+)[.):\s]\s*(?:\*\*|__|\*)?(.+?)(?:\*\*|__|\*)?(?:\s+[-–—]\s*.*|\s*:\s*.*)?$`)

	// Same numbered prefix; the trimmed line ends with '?'. Closing emphasis
	// after the '?' is accepted, so "1. **Do you rent?**" is a question; it
	// is stripped from the text like any other emphasis.
	questionLine = regexp.MustCompile(
		`^\s*(?:\*\*|__|\*)?\s*(\d+)[.):\s]\s*(?:\*\*|__|\*)?(.+\?)\s*(?:\*\*|__|\*)?\s*$`)

	emphasis = regexp.MustCompile(`\*\*|__|\*`)
	trailer  = regexp.MustCompile(`(?:\s+[-–—]|\s*:).*$`)
)

// Options returns up to MaxOptions choices from numbered list lines. Labels
// have emphasis and any trailing dash/colon fragment removed; labels
// shorter than 3 or at least 100 characters are skipped.
func Options(text string) []Option {
	var out []Option
	for _, line := range lines(text) {
		m := optionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := stripEmphasis(m[2])
		label = strings.TrimSpace(trailer.ReplaceAllString(label, ""))
		n := utf8.RuneCountInString(label)
		if n < minLabelLen || n >= maxLabelLen {
			continue
		}
		out = append(out, Option{
			ID:    makeID("option", len(out), m[1]),
			Label: label,
			Value: label,
		})
		if len(out) == MaxOptions {
			break
		}
	}
	return out
}

// Questions returns up to MaxQuestions yes/no questions from numbered lines
// ending in '?'. Questions shorter than 6 characters are skipped.
func Questions(text string) []Question {
	var out []Question
	for _, line := range lines(text) {
		m := questionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		q := stripEmphasis(m[2])
		if utf8.RuneCountInString(q) < minQuestionLen {
			continue
		}
		out = append(out, Question{
			ID:   makeID("question", len(out), m[1]),
			Text: q,
		})
		if len(out) == MaxQuestions {
			break
		}
	}
	return out
}

// IsMultiQuestion reports whether a message should be answered with
// per-question yes/no controls. Only finished, error-free messages
// qualify: numbered lines seen mid-stream may be incomplete.
func IsMultiQuestion(msg *model.Message) bool {
	if msg == nil || msg.Role != model.RoleAssistant || !msg.IsSettled() {
		return false
	}
	return len(Questions(msg.Text)) >= MultiQuestionThreshold
}

// OptionsFor returns the options of a finished assistant message.
func OptionsFor(msg *model.Message) []Option {
	if msg == nil || msg.Role != model.RoleAssistant || !msg.IsSettled() {
		return nil
	}
	return Options(msg.Text)
}

// QuestionsFor returns the questions of a finished assistant message.
func QuestionsFor(msg *model.Message) []Question {
	if msg == nil || msg.Role != model.RoleAssistant || !msg.IsSettled() {
		return nil
	}
	return Questions(msg.Text)
}

func lines(text string) []string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func stripEmphasis(s string) string {
	return strings.TrimSpace(emphasis.ReplaceAllString(s, ""))
}

// makeID builds "<kind>-<position>-<number>"; the position keeps IDs unique
// when a message contains more than one list.
func makeID(kind string, pos int, number string) string {
	return kind + "-" + strconv.Itoa(pos) + "-" + number
}
