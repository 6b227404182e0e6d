// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/remote"
	"github.com/jeranaias/aidchat/internal/storage"
	"github.com/jeranaias/aidchat/internal/stream"
	"github.com/jeranaias/aidchat/internal/suggest"
)

// =============================================================================
// HELPERS
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type memPersister struct {
	saves   int
	cleared int
	last    []*model.Message
}

func (p *memPersister) Save(msgs []*model.Message) error {
	p.saves++
	p.last = make([]*model.Message, len(msgs))
	for i, m := range msgs {
		p.last[i] = m.Clone()
	}
	return nil
}

func (p *memPersister) Clear() error {
	p.cleared++
	p.last = nil
	return nil
}

type recordingMetrics struct {
	dropped  []string
	started  int
	frags    int
	outcomes []string
	openFail int
}

func (m *recordingMetrics) SubmissionDropped(r string) { m.dropped = append(m.dropped, r) }
func (m *recordingMetrics) ExchangeStarted() { m.started++ }
func (m *recordingMetrics) FragmentApplied() { m.frags++ }
func (m *recordingMetrics) ExchangeFinished(o string, _ time.Duration) {
	m.outcomes = append(m.outcomes, o)
}
func (m *recordingMetrics) SessionOpenFailed() { m.openFail++ }

type harness struct {
	ctrl    *Controller
	svc     *remote.Scripted
	clock   *fakeClock
	store   *memPersister
	metrics *recordingMetrics
}

func newHarness(t *testing.T, scripts ...remote.Script) *harness {
	t.Helper()
	h := &harness{
		svc:     remote.NewScripted(scripts...),
		clock:   newClock(),
		store:   &memPersister{},
		metrics: &recordingMetrics{},
	}
	conv := model.NewConversationFrom(nil, h.store)
	h.ctrl = New(conv, h.svc, Options{
		SessionConfig: remote.SessionConfig{Instructions: "Help with benefits.", WebSearch: true},
		Clock:         h.clock.Now,
		Metrics:       h.metrics,
	})
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

// send submits text and runs the exchange to completion.
func (h *harness) send(t *testing.T, text string) (*Exchange, error) {
	t.Helper()
	ex, err := h.ctrl.Submit(context.Background(), text)
	if err != nil || ex == nil {
		return ex, err
	}
	return ex, h.ctrl.Run(context.Background(), ex, nil)
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestSubmit_StreamsReply(t *testing.T) {
	h := newHarness(t, remote.Text("Hello there, how can I help?").
		WithCitations(model.Citation{URI: "https://a.example", Title: "A"}))

	ex, err := h.ctrl.Submit(context.Background(), "  hi  ")
	require.NoError(t, err)
	require.NotNil(t, ex)
	require.True(t, h.ctrl.Processing())
	require.Equal(t, StateStreaming, h.ctrl.State())

	msgs := h.ctrl.Conversation().Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, model.RoleUser, msgs[0].Role)
	require.Equal(t, "hi", msgs[0].Text)
	require.True(t, msgs[1].IsStreaming)
	require.Empty(t, msgs[1].Text)
	require.Len(t, h.store.last, 2, "placeholder persisted")

	var updates int
	require.NoError(t, h.ctrl.Run(context.Background(), ex, func(*model.Message) { updates++ }))

	reply := h.ctrl.Conversation().Last()
	require.Equal(t, "Hello there, how can I help?", reply.Text)
	require.Len(t, reply.Citations, 1)
	require.False(t, reply.IsStreaming)
	require.False(t, reply.HasError)
	require.Equal(t, 7, updates, "six words and a citation")

	require.False(t, h.ctrl.Processing())
	require.Equal(t, StateIdle, h.ctrl.State())
	require.Equal(t, StateCompleted, h.ctrl.LastOutcome())
	require.Nil(t, h.ctrl.Banner())

	require.False(t, h.store.last[1].IsStreaming, "final state persisted")
	require.Equal(t, reply.Text, h.store.last[1].Text)

	require.Equal(t, 1, h.svc.Opened())
	require.Equal(t, []string{"hi"}, h.svc.Sent())
	require.Equal(t, "Help with benefits.", h.svc.Configs()[0].Instructions)
	require.Equal(t, []string{OutcomeCompleted}, h.metrics.outcomes)
	require.Equal(t, 7, h.metrics.frags)
}

func TestSubmit_ConcatenatesInOrder(t *testing.T) {
	parts := []string{"Al", "pha ", "", "be", "ta ", "γ", "\n", "done"}
	var script remote.Script
	for _, p := range parts {
		script = append(script, remote.Step{Fragment: stream.Fragment{Text: p}})
	}
	h := newHarness(t, script)

	_, err := h.send(t, "go")
	require.NoError(t, err)
	require.Equal(t, strings.Join(parts, ""), h.ctrl.Conversation().Last().Text)
}

func TestSubmit_SessionOpenedOnce(t *testing.T) {
	h := newHarness(t, remote.Text("one"), remote.Text("two"))

	_, err := h.send(t, "a")
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	_, err = h.send(t, "b")
	require.NoError(t, err)

	require.Equal(t, 1, h.svc.Opened())
	require.Equal(t, 4, h.ctrl.Conversation().Len())
	require.Equal(t, "two", h.ctrl.Conversation().Last().Text)
}

// =============================================================================
// DROPPED SUBMISSIONS
// =============================================================================

func TestSubmit_WhileProcessingIsNoop(t *testing.T) {
	h := newHarness(t, remote.Text("slow reply"))

	ex, err := h.ctrl.Submit(context.Background(), "first")
	require.NoError(t, err)
	require.NotNil(t, ex)

	h.clock.Advance(5 * time.Second)
	before := h.ctrl.Conversation().Len()
	again, err := h.ctrl.Submit(context.Background(), "second")
	require.NoError(t, err)
	require.Nil(t, again)
	require.Equal(t, before, h.ctrl.Conversation().Len())
	require.Equal(t, []string{DropBusy}, h.metrics.dropped)

	require.NoError(t, h.ctrl.Run(context.Background(), ex, nil))
}

func TestSubmit_BlankIsDropped(t *testing.T) {
	h := newHarness(t, remote.Text("x"))

	for _, text := range []string{"", "   ", "\n\t"} {
		ex, err := h.ctrl.Submit(context.Background(), text)
		require.NoError(t, err)
		require.Nil(t, ex)
	}
	require.True(t, h.ctrl.Conversation().IsEmpty())
	require.Equal(t, 0, h.svc.Opened(), "no session for dropped input")
}

func TestSubmit_MinInterval(t *testing.T) {
	h := newHarness(t, remote.Text("ok"))

	_, err := h.send(t, "one")
	require.NoError(t, err)
	require.Equal(t, 2, h.ctrl.Conversation().Len())

	// the exchange finished instantly; the interval runs from submission
	h.clock.Advance(999 * time.Millisecond)
	ex, err := h.ctrl.Submit(context.Background(), "two")
	require.NoError(t, err)
	require.Nil(t, ex)
	require.Equal(t, 2, h.ctrl.Conversation().Len())
	require.Equal(t, []string{DropRateLimited}, h.metrics.dropped)

	h.clock.Advance(time.Millisecond)
	ex, err = h.send(t, "three")
	require.NoError(t, err)
	require.NotNil(t, ex)
	require.Equal(t, 4, h.ctrl.Conversation().Len())
}

func TestSubmit_IntervalMeasuredFromSubmission(t *testing.T) {
	h := newHarness(t, remote.Text("ok"))

	ex, err := h.ctrl.Submit(context.Background(), "one")
	require.NoError(t, err)
	h.clock.Advance(900 * time.Millisecond)
	require.NoError(t, h.ctrl.Run(context.Background(), ex, nil))

	// 100ms after completion, 1000ms after submission
	h.clock.Advance(100 * time.Millisecond)
	ex, err = h.ctrl.Submit(context.Background(), "two")
	require.NoError(t, err)
	require.NotNil(t, ex)
	require.NoError(t, h.ctrl.Run(context.Background(), ex, nil))
}

// =============================================================================
// FAILURES
// =============================================================================

func TestFail_BeforeAnyText(t *testing.T) {
	h := newHarness(t, remote.Script{}.ThenFail(errors.New("connection reset")))

	_, err := h.send(t, "hi")
	require.Error(t, err)

	reply := h.ctrl.Conversation().Last()
	require.True(t, reply.HasError)
	require.False(t, reply.IsStreaming)
	require.Equal(t, stream.FallbackText, reply.Text)

	require.False(t, h.ctrl.Processing())
	require.Equal(t, StateFailed, h.ctrl.LastOutcome())
	require.NotNil(t, h.ctrl.Banner())
	require.Equal(t, KindRemoteFailure, h.ctrl.Banner().Kind)
	require.Equal(t, TextRemoteFailure, h.ctrl.Banner().Text)
	require.True(t, h.store.last[1].HasError)
}

func TestFail_RateLimitedKeepsPartialText(t *testing.T) {
	h := newHarness(t, remote.Text("Partial answer").ThenFail(&remote.RateLimitError{RetryAfter: time.Second}))

	_, err := h.send(t, "hi")
	require.True(t, remote.IsRateLimited(err))

	reply := h.ctrl.Conversation().Last()
	require.Equal(t, "Partial answer", reply.Text)
	require.True(t, reply.HasError)
	require.Equal(t, KindRateLimited, h.ctrl.Banner().Kind)
	require.Equal(t, TextRateLimited, h.ctrl.Banner().Text)

	h.ctrl.DismissBanner()
	require.Nil(t, h.ctrl.Banner())
}

func TestFail_NextSubmissionClearsBanner(t *testing.T) {
	h := newHarness(t, remote.Script{}.ThenFail(remote.ErrRemoteFailure), remote.Text("fine"))

	_, _ = h.send(t, "one")
	require.NotNil(t, h.ctrl.Banner())

	h.clock.Advance(time.Second)
	_, err := h.send(t, "two")
	require.NoError(t, err)
	require.Nil(t, h.ctrl.Banner())
}

func TestSubmit_InitializationFailure(t *testing.T) {
	h := newHarness(t, remote.Text("hello"))
	h.svc.FailOpen(errors.New("dial tcp: no route"))

	ex, err := h.ctrl.Submit(context.Background(), "hi")
	require.Nil(t, ex)
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	require.Equal(t, KindInitializationFailure, Classify(err))

	require.True(t, h.ctrl.Conversation().IsEmpty(), "no placeholder messages")
	require.Equal(t, StateIdle, h.ctrl.State())
	require.False(t, h.ctrl.Processing())
	require.Equal(t, KindInitializationFailure, h.ctrl.Banner().Kind)
	require.Equal(t, TextInitialization, h.ctrl.Banner().Text)
	require.Equal(t, 1, h.metrics.openFail)

	// no rate token was spent
	h.svc.FailOpen(nil)
	_, err = h.send(t, "hi")
	require.NoError(t, err)
	require.Equal(t, 2, h.ctrl.Conversation().Len())
	require.Nil(t, h.ctrl.Banner())
}

// =============================================================================
// RETRY
// =============================================================================

func TestRetry_TruncatesAndRestoresInput(t *testing.T) {
	h := newHarness(t, remote.Text("first reply"), remote.Text("second reply"))

	_, err := h.send(t, "question one")
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	_, err = h.send(t, "question two")
	require.NoError(t, err)
	require.Equal(t, 4, h.ctrl.Conversation().Len())
	sentBefore := len(h.svc.Sent())

	text, err := h.ctrl.Retry(2)
	require.NoError(t, err)
	require.Equal(t, "question two", text)
	require.Equal(t, "question two", h.ctrl.Input())
	require.Equal(t, 2, h.ctrl.Conversation().Len())
	require.Len(t, h.store.last, 2)
	require.Equal(t, StateIdle, h.ctrl.State())
	require.Len(t, h.svc.Sent(), sentBefore, "retry does not contact the service")

	_, err = h.ctrl.Retry(1)
	require.ErrorIs(t, err, ErrNotUserMessage)
	_, err = h.ctrl.Retry(7)
	require.ErrorIs(t, err, model.ErrIndexOutOfRange)
}

func TestRetry_BusyWhileProcessing(t *testing.T) {
	h := newHarness(t, remote.Text("reply"))

	ex, err := h.ctrl.Submit(context.Background(), "hi")
	require.NoError(t, err)
	_, err = h.ctrl.Retry(0)
	require.ErrorIs(t, err, ErrBusy)
	require.NoError(t, h.ctrl.Run(context.Background(), ex, nil))
}

// =============================================================================
// TEARDOWN
// =============================================================================

func TestClose_DiscardsLateFragments(t *testing.T) {
	h := newHarness(t, remote.Text("a b c d e f").Paced(time.Hour))

	ex, err := h.ctrl.Submit(context.Background(), "hi")
	require.NoError(t, err)

	type result struct {
		more bool
		err  error
	}
	results := make(chan result, 1)
	go func() {
		_, more, err := ex.Next()
		results <- result{more, err}
	}()

	require.NoError(t, h.ctrl.Close())
	require.False(t, h.ctrl.Processing())

	reply := h.ctrl.Conversation().Last()
	require.False(t, reply.IsStreaming)
	require.True(t, reply.HasError)
	require.Equal(t, stream.FallbackText, reply.Text)

	r := <-results
	require.False(t, r.more)
	require.ErrorIs(t, r.err, context.Canceled)

	require.False(t, h.ctrl.Apply(ex, stream.Fragment{Text: "late"}))
	h.ctrl.Fail(ex, r.err)
	require.Equal(t, stream.FallbackText, reply.Text)
	require.Nil(t, h.ctrl.Banner(), "teardown raises no banner")
	require.Equal(t, []string{OutcomeDetached}, h.metrics.outcomes)
}

func TestRun_ContextCancelDetaches(t *testing.T) {
	h := newHarness(t, remote.Text("x y z").Paced(time.Hour))

	ex, err := h.ctrl.Submit(context.Background(), "hi")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = h.ctrl.Run(ctx, ex, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, h.ctrl.Processing())
	require.False(t, h.ctrl.Conversation().Last().IsStreaming)
	require.Nil(t, h.ctrl.Banner())
}

func TestCancel_PartialReplyIsNotFinished(t *testing.T) {
	h := newHarness(t, remote.Text("unused").Paced(time.Hour))

	ex, err := h.ctrl.Submit(context.Background(), "hi")
	require.NoError(t, err)
	require.True(t, h.ctrl.Apply(ex, stream.Fragment{
		Text: "1. Do you rent your home?\n2. Do you own a vehicle?\n3. Do you",
	}))

	h.ctrl.Fail(ex, context.Canceled)

	reply := h.ctrl.Conversation().Last()
	require.False(t, reply.IsStreaming)
	require.True(t, reply.HasError)
	require.Contains(t, reply.Text, "Do you own a vehicle?", "partial text is kept")
	require.Nil(t, h.ctrl.Banner())

	require.False(t, h.ctrl.MultiQuestion())
	require.Nil(t, h.ctrl.Answers())
	require.Empty(t, h.ctrl.Questions())
	require.Empty(t, h.ctrl.Options())
	require.Empty(t, h.ctrl.QuickReplies())
}

func TestStaleExchangeIgnored(t *testing.T) {
	h := newHarness(t, remote.Text("one"), remote.Text("two"))

	first, err := h.send(t, "a")
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	second, err := h.ctrl.Submit(context.Background(), "b")
	require.NoError(t, err)

	require.False(t, h.ctrl.Apply(first, stream.Fragment{Text: "ghost"}))
	h.ctrl.Complete(first)
	h.ctrl.Fail(first, errors.New("ghost"))
	require.True(t, h.ctrl.Processing())
	require.Equal(t, "one", h.ctrl.Conversation().Messages()[1].Text)

	require.NoError(t, h.ctrl.Run(context.Background(), second, nil))
}

func TestReset(t *testing.T) {
	h := newHarness(t, remote.Text("reply"))

	_, err := h.send(t, "hi")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Reset())

	require.True(t, h.ctrl.Conversation().IsEmpty())
	require.Equal(t, 1, h.store.cleared)
	require.Nil(t, h.store.last)
}

// =============================================================================
// SUGGESTIONS AND ANSWERS
// =============================================================================

func TestQuickReplies_EmptyWhileProcessing(t *testing.T) {
	h := newHarness(t,
		remote.Text("Do you rent? Please fill in the application form."),
		remote.Text("Is it urgent?"),
	)

	_, err := h.send(t, "hi")
	require.NoError(t, err)
	replies := h.ctrl.QuickReplies()
	require.Len(t, replies, 4)
	require.Equal(t, suggest.ReplyYes, replies[0])
	require.Equal(t, suggest.ReplyNo, replies[1])
	require.Equal(t, suggest.ReplyTellMore, replies[2])
	require.Equal(t, suggest.ReplyHelp, replies[3])

	h.clock.Advance(time.Second)
	ex, err := h.ctrl.Submit(context.Background(), "Yes")
	require.NoError(t, err)
	require.Empty(t, h.ctrl.QuickReplies())
	require.Empty(t, h.ctrl.Options())
	require.False(t, h.ctrl.MultiQuestion())
	require.NoError(t, h.ctrl.Run(context.Background(), ex, nil))
}

func TestOptions_FromLatestReply(t *testing.T) {
	h := newHarness(t, remote.Text("Choose one:\n1. Apply for housing grant\n2. Apply for medical grant"))

	_, err := h.send(t, "hi")
	require.NoError(t, err)
	opts := h.ctrl.Options()
	require.Len(t, opts, 2)
	require.Equal(t, "Apply for housing grant", opts[0].Label)
	require.Equal(t, "Apply for medical grant", opts[1].Value)
}

func TestAnswers_SubmitComposedReply(t *testing.T) {
	h := newHarness(t,
		remote.Text("A few questions:\n1. Do you rent your home?\n2. Do you own a vehicle?"),
		remote.Text("Thanks."),
	)

	_, err := h.send(t, "hi")
	require.NoError(t, err)
	require.True(t, h.ctrl.MultiQuestion())

	sheet := h.ctrl.Answers()
	require.NotNil(t, sheet)
	qs := h.ctrl.Questions()
	require.Len(t, qs, 2)

	_, err = h.ctrl.SubmitAnswers(context.Background())
	require.ErrorIs(t, err, ErrAnswersIncomplete)

	require.NoError(t, h.ctrl.SetAnswer(qs[0].ID, suggest.AnswerYes))
	require.NoError(t, h.ctrl.SetAnswer(qs[1].ID, suggest.AnswerNo))
	require.Error(t, h.ctrl.SetAnswer("question-9-9", suggest.AnswerYes))
	require.Same(t, sheet, h.ctrl.Answers(), "sheet is kept while the message is current")

	h.clock.Advance(time.Second)
	ex, err := h.ctrl.SubmitAnswers(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ex)
	require.Nil(t, h.ctrl.Answers(), "cleared on submission")
	require.NoError(t, h.ctrl.Run(context.Background(), ex, nil))

	sent := h.svc.Sent()
	require.Equal(t, "Do you rent your home? Yes\nDo you own a vehicle? No", sent[len(sent)-1])
	require.False(t, h.ctrl.MultiQuestion())
}

func TestAnswers_SingleQuestionIsNotMulti(t *testing.T) {
	h := newHarness(t, remote.Text("1. Do you rent your home?"))

	_, err := h.send(t, "hi")
	require.NoError(t, err)
	require.False(t, h.ctrl.MultiQuestion())
	require.Nil(t, h.ctrl.Answers())
	require.ErrorIs(t, h.ctrl.SetAnswer("question-0-1", suggest.AnswerYes), ErrNoQuestions)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"rate limited", remote.ErrRateLimited, KindRateLimited},
		{"rate limit error", &remote.RateLimitError{RetryAfter: time.Second}, KindRateLimited},
		{"api error", &remote.APIError{Provider: "gemini", Status: 500}, KindRemoteFailure},
		{"plain", errors.New("boom"), KindRemoteFailure},
		{"init", &InitError{Err: errors.New("offline")}, KindInitializationFailure},
		{"not configured", remote.ErrNotConfigured, KindInitializationFailure},
		{"storage", storage.ErrCorrupt, KindStorageParseFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
	require.Nil(t, BannerFor(KindStorageParseFailure), "storage failures are never shown")
}
