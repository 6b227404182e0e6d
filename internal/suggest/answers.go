// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/aidchat/internal/extract"
)

// ErrUnknownQuestion is returned when an answer names a question that is
// not on the sheet.
var ErrUnknownQuestion = errors.New("unknown question")

// AnswerValue is the state of one yes/no answer.
type AnswerValue int

const (
	AnswerUnset AnswerValue = iota
	AnswerYes
	AnswerNo
)

// String returns the label used when composing a reply.
func (v AnswerValue) String() string {
	switch v {
	case AnswerYes:
		return "Yes"
	case AnswerNo:
		return "No"
	default:
		return "unset"
	}
}

// Answer pairs a question with its current answer.
type Answer struct {
	QuestionID   string
	QuestionText string
	Value        AnswerValue
}

// AnswerSheet holds the per-question answers for one assistant message.
type AnswerSheet struct {
	messageID string
	answers   []Answer
}

// NewAnswerSheet creates an unanswered sheet for the questions of a message.
func NewAnswerSheet(messageID string, questions []extract.Question) *AnswerSheet {
	s := &AnswerSheet{
		messageID: messageID,
		answers:   make([]Answer, len(questions)),
	}
	for i, q := range questions {
		s.answers[i] = Answer{QuestionID: q.ID, QuestionText: q.Text}
	}
	return s
}

// MessageID returns the assistant message the sheet belongs to.
func (s *AnswerSheet) MessageID() string {
	return s.messageID
}

// Answers returns a copy of the answers in question order.
func (s *AnswerSheet) Answers() []Answer {
	out := make([]Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Set records an answer. Setting AnswerUnset clears it.
func (s *AnswerSheet) Set(questionID string, v AnswerValue) error {
	for i := range s.answers {
		if s.answers[i].QuestionID == questionID {
			s.answers[i].Value = v
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
}

// Get returns the answer for a question.
func (s *AnswerSheet) Get(questionID string) (AnswerValue, bool) {
	for _, a := range s.answers {
		if a.QuestionID == questionID {
			return a.Value, true
		}
	}
	return AnswerUnset, false
}

// Answered returns how many questions have an answer.
func (s *AnswerSheet) Answered() int {
	n := 0
	for _, a := range s.answers {
		if a.Value != AnswerUnset {
			n++
		}
	}
	return n
}

// Complete reports whether every question has been answered.
func (s *AnswerSheet) Complete() bool {
	return len(s.answers) > 0 && s.Answered() == len(s.answers)
}

// Compose renders the answers as a reply, one "<question> <Yes|No>" line
// per answered question in order.
func (s *AnswerSheet) Compose() string {
	var sb strings.Builder
	for _, a := range s.answers {
		if a.Value == AnswerUnset {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(a.QuestionText)
		sb.WriteByte(' ')
		sb.WriteString(a.Value.String())
	}
	return sb.String()
}

// Reset clears every answer.
func (s *AnswerSheet) Reset() {
	for i := range s.answers {
		s.answers[i].Value = AnswerUnset
	}
}
