// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"errors"

	"github.com/jeranaias/aidchat/internal/remote"
	"github.com/jeranaias/aidchat/internal/storage"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// ErrorKind classifies a failure for presentation.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRateLimited
	KindRemoteFailure
	KindInitializationFailure
	KindStorageParseFailure
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindRemoteFailure:
		return "remote_failure"
	case KindInitializationFailure:
		return "initialization_failure"
	case KindStorageParseFailure:
		return "storage_parse_failure"
	default:
		return "none"
	}
}

// Banner texts shown to the user.
const (
	TextRateLimited    = "The assistant is receiving a lot of requests right now. Please wait a moment and try again."
	TextRemoteFailure  = "Something went wrong while getting a response. Please try again."
	TextInitialization = "Could not connect to the assistant. Please check your connection and try again."
)

// Banner is the conversation-level error surface.
type Banner struct {
	Kind ErrorKind
	Text string
}

// BannerFor returns the banner for a kind. Storage parse failures are never
// shown, so they (and KindNone) yield nil.
func BannerFor(kind ErrorKind) *Banner {
	switch kind {
	case KindRateLimited:
		return &Banner{Kind: kind, Text: TextRateLimited}
	case KindRemoteFailure:
		return &Banner{Kind: kind, Text: TextRemoteFailure}
	case KindInitializationFailure:
		return &Banner{Kind: kind, Text: TextInitialization}
	default:
		return nil
	}
}

// =============================================================================
// SENTINELS
// =============================================================================

var (
	// ErrBusy is returned by operations not allowed while an exchange is in flight.
	ErrBusy = errors.New("an exchange is in progress")

	// ErrNotUserMessage is returned when Retry targets an assistant message.
	ErrNotUserMessage = errors.New("only user messages can be retried")

	// ErrAnswersIncomplete is returned by SubmitAnswers before every question
	// has an answer.
	ErrAnswersIncomplete = errors.New("not every question has been answered")

	// ErrNoQuestions is returned by answer operations when the latest message
	// does not ask several questions.
	ErrNoQuestions = errors.New("no questions to answer")
)

// InitError reports that the remote session could not be opened.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return "failed to open session: " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Classify maps an error to its kind. Nil maps to KindNone.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var initErr *InitError
	switch {
	case errors.As(err, &initErr), errors.Is(err, remote.ErrNotConfigured):
		return KindInitializationFailure
	case errors.Is(err, remote.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, storage.ErrCorrupt):
		return KindStorageParseFailure
	default:
		return KindRemoteFailure
	}
}
