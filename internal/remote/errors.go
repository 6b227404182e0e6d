// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Sentinel errors. Providers wrap every failure so that errors.Is matches
// exactly one of ErrRateLimited or ErrRemoteFailure.
var (
	// ErrRateLimited indicates the service refused the request for load.
	ErrRateLimited = errors.New("rate limited")

	// ErrRemoteFailure covers every other failure of the remote service.
	ErrRemoteFailure = errors.New("remote failure")

	// ErrNotConfigured indicates a provider is missing required settings.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")
)

// RateLimitError is a rate-limit failure carrying the server's retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %v)", e.RetryAfter)
	}
	return msg
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// APIError is a non-rate-limit error response from a provider.
type APIError struct {
	Provider string
	Status   int
	Code     string
	Message  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s] (HTTP %d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

// Is allows APIError to be compared with ErrRemoteFailure.
func (e *APIError) Is(target error) bool {
	return target == ErrRemoteFailure
}

// Failure wraps err so that it matches ErrRemoteFailure while keeping the
// original cause reachable. Rate-limit errors and nil pass through.
func Failure(err error) error {
	if err == nil || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrRemoteFailure) {
		return err
	}
	return &failure{err: err}
}

type failure struct {
	err error
}

func (f *failure) Error() string { return f.err.Error() }

func (f *failure) Unwrap() []error { return []error{ErrRemoteFailure, f.err} }

// =============================================================================
// RATE LIMIT HANDLING
// =============================================================================

// RateLimitFromResponse builds a RateLimitError from a 429 response,
// parsing Retry-After as seconds or an HTTP date.
func RateLimitFromResponse(resp *http.Response, message string) error {
	e := &RateLimitError{Message: message}
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return e
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		e.RetryAfter = time.Duration(seconds) * time.Second
		return e
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		e.RetryAfter = time.Until(t)
	}
	return e
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
