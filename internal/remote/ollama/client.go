// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama implements the remote service contract on top of a local
// Ollama server's /api/chat streaming endpoint.
package ollama

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/aidchat/internal/remote"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorType says what went wrong talking to Ollama.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// ClientError is returned for every failure the client itself detects.
// All of them count as remote.ErrRemoteFailure; Ollama never rate limits.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ClientError) Unwrap() error { return e.Cause }

// Is matches remote.ErrRemoteFailure and any cause-less ClientError of the
// same Type, so the sentinels below work with errors.Is.
func (e *ClientError) Is(target error) bool {
	if target == remote.ErrRemoteFailure {
		return true
	}
	t, ok := target.(*ClientError)
	return ok && t.Cause == nil && t.Type == e.Type
}

var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// IsNotRunning reports whether err means the server could not be reached.
func IsNotRunning(err error) bool { return errors.Is(err, ErrNotRunning) }

// IsModelNotFound reports whether err means the model is not pulled.
func IsModelNotFound(err error) bool { return errors.Is(err, ErrModelNotFound) }

// =============================================================================
// CLIENT
// =============================================================================

const (
	defaultBaseURL = "http://127.0.0.1:11434"
	defaultTimeout = 5 * time.Second
	defaultModel   = "llama3.2"
)

// ClientConfig configures a Client. Zero fields take defaults.
type ClientConfig struct {
	BaseURL      string        // http://127.0.0.1:11434
	Timeout      time.Duration // health check only; streams are bounded by ctx
	DefaultModel string        // used when the session names no model
}

// Client is a remote.Service backed by Ollama. Opening a session probes the
// server, so a stopped server is an initialization failure and not a failed
// reply.
type Client struct {
	baseURL string
	model   string
	probe   *http.Client
	// plain HTTP: Ollama listens on loopback
	stream *http.Client
	logger *slog.Logger
}

// NewClient returns a client for cfg; nil means all defaults.
func NewClient(cfg *ClientConfig) *Client {
	var c ClientConfig
	if cfg != nil {
		c = *cfg
	}
	return &Client{
		baseURL: strings.TrimSuffix(cmp.Or(c.BaseURL, defaultBaseURL), "/"),
		model:   cmp.Or(c.DefaultModel, defaultModel),
		probe:   &http.Client{Timeout: cmp.Or(c.Timeout, defaultTimeout)},
		stream:  &http.Client{},
		logger:  slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	resp, err := c.probe.Do(req)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Type: ErrTypeConnection, Message: "unexpected status from Ollama: " + resp.Status}
	}
	return nil
}

// OpenSession implements remote.Service. The web search flag is ignored.
func (c *Client) OpenSession(ctx context.Context, cfg remote.SessionConfig) (remote.Session, error) {
	if err := c.CheckRunning(ctx); err != nil {
		return nil, err
	}
	model := cmp.Or(cfg.Model, c.model)
	s := &session{id: remote.NewSessionID(), client: c, model: model, cfg: cfg}
	c.logger.Debug("ollama session opened", "session", s.id, "model", model)
	return s, nil
}

// =============================================================================
// SESSION
// =============================================================================

type session struct {
	id      string
	client  *Client
	model   string
	cfg     remote.SessionConfig
	history remote.History
	closed  atomic.Bool
}

func (s *session) ID() string { return s.id }

func (s *session) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *session) StreamMessage(ctx context.Context, text string) iter.Seq2[remote.Fragment, error] {
	return func(yield func(remote.Fragment, error) bool) {
		if s.closed.Load() {
			yield(remote.Fragment{}, remote.ErrSessionClosed)
			return
		}

		resp, err := s.send(ctx, text)
		if err != nil {
			yield(remote.Fragment{}, err)
			return
		}
		defer resp.Body.Close()

		reader := NewStreamReader(resp.Body)
		for {
			chunk, err := reader.Next()
			if err != nil {
				if ctx.Err() != nil {
					yield(remote.Fragment{}, ctx.Err())
					return
				}
				yield(remote.Fragment{}, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err})
				return
			}
			if chunk == nil {
				break
			}
			if chunk.Error != "" {
				yield(remote.Fragment{}, &ClientError{Type: ErrTypeInvalidResponse, Message: chunk.Error})
				return
			}
			if chunk.Content != "" {
				if !yield(remote.Fragment{Text: chunk.Content}, nil) {
					return
				}
			}
			if chunk.Done {
				break
			}
		}

		s.history.Commit(text, reader.Accumulated())
	}
}

func (s *session) send(ctx context.Context, text string) (*http.Response, error) {
	turns := s.history.Turns(text)
	messages := make([]Message, 0, len(turns)+1)
	if s.cfg.Instructions != "" {
		messages = append(messages, Message{Role: "system", Content: s.cfg.Instructions})
	}
	for _, t := range turns {
		messages = append(messages, Message{Role: t.Role, Content: t.Text})
	}

	body, err := json.Marshal(ChatRequest{Model: s.model, Messages: messages, Stream: true})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrNotRunning
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, s.model)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var ollamaErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: ollamaErr.Error}
		}
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "stream request failed: " + resp.Status}
	}
	return resp, nil
}
