// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements the remote service contract on top of the
// Gemini streamGenerateContent API, including Google Search grounding.
package gemini

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/aidchat/internal/remote"
)

// Configuration constants for the Gemini API.
const (
	// DefaultBaseURL is the base URL of the Generative Language API.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when neither the client nor the session names one.
	DefaultModel = "gemini-2.0-flash"

	// MaxErrorBodySize bounds how much of an error response is read.
	MaxErrorBodySize = 64 * 1024

	providerName = "gemini"
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Streaming requests have no client timeout; they are controlled via context.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a remote.Service backed by Gemini.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Gemini client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: sharedStreamingClient,
		logger:     slog.New(slog.DiscardHandler),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithModel sets the default model.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithHTTPClient replaces the HTTP client (tests use httptest clients).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// OpenSession implements remote.Service. Gemini is stateless over HTTP, so
// a session is local state: the instruction set, the tool list and the
// committed history replayed on every turn.
func (c *Client) OpenSession(ctx context.Context, cfg remote.SessionConfig) (remote.Session, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("gemini: %w: missing API key", remote.ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := c.model
	if cfg.Model != "" {
		model = cfg.Model
	}
	s := &session{
		id:     remote.NewSessionID(),
		client: c,
		model:  model,
		cfg:    cfg,
	}
	c.logger.Debug("gemini session opened", "session", s.id, "model", model, "web_search", cfg.WebSearch)
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

// StreamMessage implements remote.Session. The request is sent when the
// sequence is first ranged over.
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

		// PERFORMANCE: strings.Builder avoids quadratic allocations
		var reply strings.Builder
		reader := remote.NewSSEReader(resp.Body)
		for {
			_, data, err := reader.ReadEvent()
			if err == io.EOF {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					yield(remote.Fragment{}, ctx.Err())
					return
				}
				yield(remote.Fragment{}, remote.Failure(fmt.Errorf("gemini: read stream: %w", err)))
				return
			}

			frag, err := parseChunk(data)
			if err != nil {
				yield(remote.Fragment{}, err)
				return
			}
			if frag.IsEmpty() {
				continue
			}
			reply.WriteString(frag.Text)
			if !yield(frag, nil) {
				return
			}
		}

		s.history.Commit(text, reply.String())
	}
}

func (s *session) send(ctx context.Context, text string) (*http.Response, error) {
	body, err := json.Marshal(s.buildRequest(text))
	if err != nil {
		return nil, remote.Failure(fmt.Errorf("gemini: marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", s.client.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, remote.Failure(fmt.Errorf("gemini: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", s.client.apiKey)

	start := time.Now()
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, remote.Failure(fmt.Errorf("gemini: request failed: %w", err))
	}
	s.client.logger.Debug("gemini response", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, handleErrorResponse(resp, errBody)
	}
	return resp, nil
}

func (s *session) buildRequest(text string) generateRequest {
	turns := s.history.Turns(text)
	req := generateRequest{Contents: make([]content, 0, len(turns))}
	for _, t := range turns {
		role := "user"
		if t.Role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	if s.cfg.Instructions != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: s.cfg.Instructions}}}
	}
	if s.cfg.WebSearch {
		req.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}
	return req
}

// =============================================================================
// RESPONSE PARSING
// =============================================================================

// parseChunk converts one SSE data payload into a fragment. A payload that
// carries an error object is a failure; a blocked prompt is a failure too.
func parseChunk(data []byte) (remote.Fragment, error) {
	var chunk streamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		// Skip malformed chunks
		return remote.Fragment{}, nil
	}
	if chunk.Error != nil {
		return remote.Fragment{}, classify(chunk.Error.Code, chunk.Error.Status, chunk.Error.Message, nil)
	}
	if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
		return remote.Fragment{}, &remote.APIError{
			Provider: providerName,
			Status:   http.StatusOK,
			Code:     chunk.PromptFeedback.BlockReason,
			Message:  "prompt blocked",
		}
	}

	var frag remote.Fragment
	if len(chunk.Candidates) == 0 {
		return frag, nil
	}
	cand := chunk.Candidates[0]

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	frag.Text = sb.String()

	if gm := cand.GroundingMetadata; gm != nil {
		for _, gc := range gm.GroundingChunks {
			if gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			frag.Citations = append(frag.Citations, citation(gc.Web.URI, gc.Web.Title))
		}
	}
	return frag, nil
}

// handleErrorResponse converts HTTP error responses to remote errors.
func handleErrorResponse(resp *http.Response, body []byte) error {
	var env errorEnvelope
	msg := strings.TrimSpace(string(body))
	status := ""
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		msg = env.Error.Message
		status = env.Error.Status
	}
	return classify(resp.StatusCode, status, msg, resp)
}

func classify(code int, status, msg string, resp *http.Response) error {
	if code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" {
		if resp != nil {
			return remote.RateLimitFromResponse(resp, msg)
		}
		return &remote.RateLimitError{Message: msg}
	}
	return &remote.APIError{Provider: providerName, Status: code, Code: status, Message: msg}
}
