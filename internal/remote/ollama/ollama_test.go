// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/aidchat/internal/remote"
)

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReader(t *testing.T) {
	input := `{"model":"llama3.2","message":{"role":"assistant","content":"Hel"},"done":false}
{"model":"llama3.2","message":{"role":"assistant","content":"lo"},"done":false}

garbage line
{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`

	r := NewStreamReader(strings.NewReader(input))
	var contents []string
	for {
		chunk, err := r.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if chunk == nil {
			break
		}
		contents = append(contents, chunk.Content)
		if chunk.Done && chunk.DoneReason != "stop" {
			t.Errorf("DoneReason = %q", chunk.DoneReason)
		}
	}

	if len(contents) != 3 {
		t.Fatalf("got %d chunks, want 3", len(contents))
	}
	if r.Accumulated() != "Hello" {
		t.Errorf("Accumulated() = %q, want %q", r.Accumulated(), "Hello")
	}
	if r.TokenCount() != 2 {
		t.Errorf("TokenCount() = %d, want 2", r.TokenCount())
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func newServer(t *testing.T, chat http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ollama is running")
	})
	mux.HandleFunc("/api/chat", chat)
	return httptest.NewServer(mux)
}

func TestSession_Stream(t *testing.T) {
	var mu sync.Mutex
	var requests []ChatRequest
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hi "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"there"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	})
	defer server.Close()

	c := NewClient(&ClientConfig{BaseURL: server.URL})
	sess, err := c.OpenSession(context.Background(), remote.SessionConfig{Instructions: "Be brief.", Model: "tiny"})
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	for _, text := range []string{"one", "two"} {
		var got strings.Builder
		for frag, err := range sess.StreamMessage(context.Background(), text) {
			if err != nil {
				t.Fatalf("stream error: %v", err)
			}
			got.WriteString(frag.Text)
		}
		if got.String() != "Hi there" {
			t.Errorf("reply = %q", got.String())
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 {
		t.Fatalf("got %d requests", len(requests))
	}
	second := requests[1]
	if second.Model != "tiny" || !second.Stream {
		t.Errorf("request = %+v", second)
	}
	// system, user, assistant, user
	if len(second.Messages) != 4 || second.Messages[0].Role != "system" || second.Messages[2].Content != "Hi there" {
		t.Errorf("history not replayed: %+v", second.Messages)
	}
}

func TestSession_ModelNotFound(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	sess, err := NewClient(&ClientConfig{BaseURL: server.URL}).OpenSession(context.Background(), remote.SessionConfig{})
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	for _, err := range sess.StreamMessage(context.Background(), "hi") {
		if !IsModelNotFound(err) {
			t.Errorf("expected model not found, got %v", err)
		}
		if !errors.Is(err, remote.ErrRemoteFailure) {
			t.Errorf("error should match ErrRemoteFailure: %v", err)
		}
	}
}

func TestOpenSession_NotRunning(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(&ClientConfig{BaseURL: url}).OpenSession(context.Background(), remote.SessionConfig{})
	if !IsNotRunning(err) {
		t.Errorf("expected not running, got %v", err)
	}
}
