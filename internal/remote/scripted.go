// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/aidchat/internal/model"
)

// =============================================================================
// SCRIPTED PROVIDER
// =============================================================================

// Step is one scripted event: a fragment, or a failure that ends the reply.
type Step struct {
	Fragment Fragment
	Err      error
	Delay    time.Duration
}

// Script is the sequence of steps played back for one reply.
type Script []Step

// Text returns a script that streams s word by word.
func Text(s string) Script {
	var out Script
	for _, w := range strings.SplitAfter(s, " ") {
		if w == "" {
			continue
		}
		out = append(out, Step{Fragment: Fragment{Text: w}})
	}
	return out
}

// WithCitations appends a citation-only step.
func (s Script) WithCitations(cs ...model.Citation) Script {
	return append(s, Step{Fragment: Fragment{Citations: cs}})
}

// ThenFail appends a failure step.
func (s Script) ThenFail(err error) Script {
	return append(s, Step{Err: err})
}

// Paced returns a copy of s with d between steps.
func (s Script) Paced(d time.Duration) Script {
	out := make(Script, len(s))
	for i, step := range s {
		step.Delay = d
		out[i] = step
	}
	return out
}

// Scripted is a deterministic Service that plays back scripts. It backs the
// "demo" provider and is the fake used by tests.
//
// Replies are consumed in order; once exhausted the Responder (if set)
// builds the reply from the user text, otherwise the last script repeats.
type Scripted struct {
	mu        sync.Mutex
	scripts   []Script
	next      int
	openErr   error
	opened    int
	sent      []string
	configs   []SessionConfig
	Responder func(text string) Script
}

// NewScripted creates a scripted service that plays scripts in order.
func NewScripted(scripts ...Script) *Scripted {
	return &Scripted{scripts: scripts}
}

// FailOpen makes the next OpenSession calls fail with err (nil clears it).
func (s *Scripted) FailOpen(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

// Push appends scripts to the playback queue.
func (s *Scripted) Push(scripts ...Script) {
	s.mu.Lock()
	s.scripts = append(s.scripts, scripts...)
	s.mu.Unlock()
}

// Opened returns how many sessions were opened successfully.
func (s *Scripted) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Sent returns every message text streamed so far.
func (s *Scripted) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// Configs returns the configuration of every opened session.
func (s *Scripted) Configs() []SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SessionConfig(nil), s.configs...)
}

// OpenSession implements Service.
func (s *Scripted) OpenSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++
	s.configs = append(s.configs, cfg)
	return &scriptedSession{id: NewSessionID(), svc: s}, nil
}

func (s *Scripted) take(text string) Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	if s.next < len(s.scripts) {
		sc := s.scripts[s.next]
		s.next++
		return sc
	}
	if s.Responder != nil {
		return s.Responder(text)
	}
	if len(s.scripts) > 0 {
		return s.scripts[len(s.scripts)-1]
	}
	return nil
}

type scriptedSession struct {
	id     string
	svc    *Scripted
	mu     sync.Mutex
	closed bool
}

func (ss *scriptedSession) ID() string { return ss.id }

func (ss *scriptedSession) Close() error {
	ss.mu.Lock()
	ss.closed = true
	ss.mu.Unlock()
	return nil
}

func (ss *scriptedSession) StreamMessage(ctx context.Context, text string) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		ss.mu.Lock()
		closed := ss.closed
		ss.mu.Unlock()
		if closed {
			yield(Fragment{}, ErrSessionClosed)
			return
		}

		for _, step := range ss.svc.take(text) {
			if step.Delay > 0 {
				t := time.NewTimer(step.Delay)
				select {
				case <-ctx.Done():
					t.Stop()
					yield(Fragment{}, ctx.Err())
					return
				case <-t.C:
				}
			} else if err := ctx.Err(); err != nil {
				yield(Fragment{}, err)
				return
			}

			if step.Err != nil {
				yield(Fragment{}, step.Err)
				return
			}
			if !yield(step.Fragment, nil) {
				return
			}
		}
	}
}

// =============================================================================
// DEMO RESPONDER
// =============================================================================

// DemoResponder answers with canned replies that exercise the option,
// question and quick-reply heuristics. Used by the "demo" provider.
func DemoResponder(text string) Script {
	lower := strings.ToLower(text)
	var reply string
	switch {
	case hasWord(lower, "yes") || hasWord(lower, "no"):
		reply = "Thanks. Based on that, here are programs worth a look:\n\n" +
			"1. **Rental assistance** - help with monthly rent\n" +
			"2. **Utility assistance** - help with energy bills\n" +
			"3. **Food assistance** - monthly grocery benefits\n\n" +
			"Pick one and I can walk you through the application."
	case strings.Contains(lower, "help") || strings.Contains(lower, "explain"):
		reply = "Of course. An application is a form that tells the agency about your " +
			"household so they can check which benefits you qualify for."
	default:
		reply = "I can help you find assistance programs. A few quick questions first:\n\n" +
			"1. Do you rent your home?\n" +
			"2. Do you have children under 18?\n" +
			"3. Is anyone in your household working?"
	}
	return Text(reply).
		WithCitations(model.Citation{URI: "https://www.benefits.gov", Title: "Benefits.gov"}).
		Paced(15 * time.Millisecond)
}

func hasWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

// NewDemo returns the scripted service used by the "demo" provider.
func NewDemo() *Scripted {
	return &Scripted{Responder: DemoResponder}
}
