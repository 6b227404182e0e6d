// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is a chat message in the /api/chat request.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest is the request body for the /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// StreamChunk is one decoded line of a streaming response.
type StreamChunk struct {
	Content    string
	Done       bool
	DoneReason string
	Model      string
	Error      string
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatLine struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Next returns the next chunk. It returns (nil, nil) at the end of the
// stream. Blank and malformed lines are skipped.
func (s *StreamReader) Next() (*StreamChunk, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if len(strings.TrimSpace(string(line))) > 0 {
			var resp chatLine
			if jsonErr := json.Unmarshal(line, &resp); jsonErr == nil {
				if resp.Message.Content != "" {
					s.accumulator.WriteString(resp.Message.Content)
					s.tokenCount++
				}
				return &StreamChunk{
					Content:    resp.Message.Content,
					Done:       resp.Done,
					DoneReason: resp.DoneReason,
					Model:      resp.Model,
					Error:      resp.Error,
				}, nil
			}
		}
		if err == io.EOF {
			return nil, nil
		}
	}
}

// Accumulated returns all content read so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// TokenCount returns the number of content chunks received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}
