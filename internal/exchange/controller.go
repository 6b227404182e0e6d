// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/aidchat/internal/extract"
	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/remote"
	"github.com/jeranaias/aidchat/internal/stream"
	"github.com/jeranaias/aidchat/internal/suggest"
)

// DefaultMinInterval is the minimum spacing between accepted submissions.
const DefaultMinInterval = 1000 * time.Millisecond

// =============================================================================
// STATE
// =============================================================================

// State is the controller's position in the exchange lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Controller.
type Options struct {
	// SessionConfig is passed to the service when the session is opened.
	SessionConfig remote.SessionConfig

	// MinInterval between accepted submissions (default: 1000ms)
	MinInterval time.Duration

	// Clock drives the rate limiter and timestamps (default: time.Now)
	Clock func() time.Time

	Logger  *slog.Logger
	Metrics Metrics
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the single writer of a conversation. It is not safe for
// concurrent use.
type Controller struct {
	conv    *model.Conversation
	svc     remote.Service
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics Metrics

	session remote.Session
	active  *Exchange
	seq     uint64
	state   State
	last    State
	banner  *Banner
	input   string
	answers *suggest.AnswerSheet
}

// New creates a controller over conv. The remote session is opened lazily
// on the first accepted submission.
func New(conv *model.Conversation, svc remote.Service, opts Options) *Controller {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Controller{
		conv:    conv,
		svc:     svc,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Conversation returns the owned conversation.
func (c *Controller) Conversation() *model.Conversation {
	return c.conv
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit starts an exchange for text. A blank submission, one made while an
// exchange is in flight, or one made too soon after the last accepted
// submission returns (nil, nil) and changes nothing. If the session cannot
// be opened the banner is set, no messages are added and an *InitError is
// returned.
func (c *Controller) Submit(ctx context.Context, text string) (*Exchange, error) {
	if c.Processing() {
		c.drop(DropBusy)
		return nil, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.drop(DropEmpty)
		return nil, nil
	}
	now := c.opts.Clock()
	if c.limiter.TokensAt(now) < 1 {
		c.drop(DropRateLimited)
		return nil, nil
	}

	c.state = StateSending
	if err := c.ensureSession(ctx); err != nil {
		c.state = StateIdle
		c.banner = BannerFor(KindInitializationFailure)
		c.metrics.SessionOpenFailed()
		c.logger.Error("session open failed", "kind", KindInitializationFailure.String(), "error", err)
		return nil, &InitError{Err: err}
	}
	// the token is only spent once the submission is definitely accepted
	c.limiter.AllowN(now, 1)

	user := model.NewUserMessage(text)
	user.Timestamp = now
	reply := model.NewAssistantMessage()
	reply.Timestamp = now
	c.persistErr(c.conv.Append(user))
	c.persistErr(c.conv.Append(reply))

	c.answers = nil
	c.banner = nil
	c.input = ""

	c.seq++
	exCtx, cancel := context.WithCancel(ctx)
	asm := stream.NewAssemblerWithClock(reply, c.opts.Clock)
	ex := newExchange(exCtx, c.seq, asm, c.session.StreamMessage(exCtx, text), cancel, now)
	c.active = ex
	c.state = StateStreaming
	c.metrics.ExchangeStarted()
	c.logger.Debug("exchange started", "seq", ex.seq, "message", reply.ID, "session", c.session.ID())
	return ex, nil
}

func (c *Controller) ensureSession(ctx context.Context) error {
	if c.session != nil {
		return nil
	}
	sess, err := c.svc.OpenSession(ctx, c.opts.SessionConfig)
	if err != nil {
		return err
	}
	c.session = sess
	c.logger.Info("session opened", "session", sess.ID())
	return nil
}

func (c *Controller) drop(reason string) {
	c.metrics.SubmissionDropped(reason)
	c.logger.Debug("submission dropped", "reason", reason)
}

func (c *Controller) persistErr(err error) {
	if err != nil {
		c.logger.Error("failed to persist conversation", "error", err)
	}
}

// =============================================================================
// FRAGMENT DELIVERY
// =============================================================================

func (c *Controller) current(ex *Exchange) bool {
	return ex != nil && ex == c.active
}

// Apply appends a fragment to the exchange's message. Fragments from an
// exchange that is no longer current are discarded and Apply returns false.
func (c *Controller) Apply(ex *Exchange, frag stream.Fragment) bool {
	if !c.current(ex) {
		return false
	}
	if !ex.asm.Apply(frag) {
		return false
	}
	c.metrics.FragmentApplied()
	return true
}

// Complete finishes the exchange successfully.
func (c *Controller) Complete(ex *Exchange) {
	if !c.current(ex) {
		return
	}
	ex.asm.Complete()
	c.finish(ex, StateCompleted, OutcomeCompleted)
}

// Fail finishes the exchange with an error. Partial text is kept and the
// banner for the error's kind is raised. A context cancellation is treated
// as teardown and raises no banner.
func (c *Controller) Fail(ex *Exchange, err error) {
	if !c.current(ex) {
		return
	}
	if errors.Is(err, context.Canceled) {
		c.detach(ex)
		return
	}
	kind := Classify(err)
	if kind != KindRateLimited && kind != KindRemoteFailure {
		kind = KindRemoteFailure
	}
	ex.asm.Fail()
	c.banner = BannerFor(kind)
	c.logger.Warn("exchange failed", "seq", ex.seq, "kind", kind.String(), "error", err)
	c.finish(ex, StateFailed, OutcomeFailed)
}

func (c *Controller) detach(ex *Exchange) {
	ex.asm.Detach()
	c.finish(ex, StateIdle, OutcomeDetached)
}

func (c *Controller) finish(ex *Exchange, outcome State, label string) {
	ex.Cancel()
	c.active = nil
	c.last = outcome
	c.state = StateIdle
	c.persistErr(c.conv.Persist())
	elapsed := c.opts.Clock().Sub(ex.started)
	c.metrics.ExchangeFinished(label, elapsed)
	c.logger.Debug("exchange finished", "seq", ex.seq, "outcome", label, "elapsed", elapsed)
}

// Run pulls every fragment of ex and applies it, calling onUpdate after each
// one. It returns the stream error, if any, after the exchange is finalized.
// Cancelling ctx tears the exchange down.
func (c *Controller) Run(ctx context.Context, ex *Exchange, onUpdate func(*model.Message)) error {
	if ex == nil {
		return nil
	}
	stop := context.AfterFunc(ctx, ex.Cancel)
	defer stop()

	for {
		frag, more, err := ex.Next()
		if err != nil {
			c.Fail(ex, err)
			return err
		}
		if !more {
			c.Complete(ex)
			return nil
		}
		if c.Apply(ex, frag) && onUpdate != nil {
			onUpdate(ex.Message())
		}
	}
}

// =============================================================================
// RETRY / RESET / TEARDOWN
// =============================================================================

// Retry truncates the conversation to just before the user message at index
// and returns its text, which also becomes Input(). The remote service is
// not contacted.
func (c *Controller) Retry(index int) (string, error) {
	if c.Processing() {
		return "", ErrBusy
	}
	msg, err := c.conv.At(index)
	if err != nil {
		return "", err
	}
	if msg.Role != model.RoleUser {
		return "", ErrNotUserMessage
	}
	text := msg.Text
	if err := c.conv.Truncate(index); err != nil {
		return "", fmt.Errorf("retry: %w", err)
	}
	c.input = text
	c.banner = nil
	c.answers = nil
	c.state = StateIdle
	return text, nil
}

// Reset tears down any in-flight exchange and clears the conversation and
// its stored copy.
func (c *Controller) Reset() error {
	if c.active != nil {
		c.detach(c.active)
	}
	c.banner = nil
	c.answers = nil
	c.input = ""
	c.last = StateIdle
	return c.conv.Reset()
}

// Close tears down any in-flight exchange and closes the session.
func (c *Controller) Close() error {
	if c.active != nil {
		c.detach(c.active)
	}
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// =============================================================================
// OBSERVERS
// =============================================================================

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// LastOutcome returns Completed or Failed for the most recent finished
// exchange, or Idle if there is none.
func (c *Controller) LastOutcome() State {
	return c.last
}

// Processing reports whether an exchange is in flight.
func (c *Controller) Processing() bool {
	return c.active != nil
}

// Active returns the in-flight exchange, if any.
func (c *Controller) Active() *Exchange {
	return c.active
}

// Banner returns the current error banner, or nil.
func (c *Controller) Banner() *Banner {
	return c.banner
}

// DismissBanner clears the banner.
func (c *Controller) DismissBanner() {
	c.banner = nil
}

// Input returns the text a retry placed back in the input.
func (c *Controller) Input() string {
	return c.input
}

// SetInput records the current input text.
func (c *Controller) SetInput(s string) {
	c.input = s
}

// QuickReplies returns reply suggestions for the latest message.
func (c *Controller) QuickReplies() []suggest.Reply {
	return suggest.QuickReplies(c.conv.Messages(), c.Processing())
}

func (c *Controller) lastAssistant() *model.Message {
	if c.Processing() {
		return nil
	}
	last := c.conv.Last()
	if last == nil || last.Role != model.RoleAssistant {
		return nil
	}
	return last
}

// Options returns the selectable options offered by the latest message.
func (c *Controller) Options() []extract.Option {
	return extract.OptionsFor(c.lastAssistant())
}

// Questions returns the numbered questions asked by the latest message.
func (c *Controller) Questions() []extract.Question {
	return extract.QuestionsFor(c.lastAssistant())
}

// MultiQuestion reports whether the latest message asks several questions
// that should be answered individually.
func (c *Controller) MultiQuestion() bool {
	return extract.IsMultiQuestion(c.lastAssistant())
}

// Answers returns the answer sheet for the latest message, creating it on
// first use. It is nil unless MultiQuestion is true.
func (c *Controller) Answers() *suggest.AnswerSheet {
	msg := c.lastAssistant()
	if !extract.IsMultiQuestion(msg) {
		return nil
	}
	if c.answers == nil || c.answers.MessageID() != msg.ID {
		c.answers = suggest.NewAnswerSheet(msg.ID, extract.Questions(msg.Text))
	}
	return c.answers
}

// SetAnswer records a yes/no answer for one question.
func (c *Controller) SetAnswer(questionID string, v suggest.AnswerValue) error {
	sheet := c.Answers()
	if sheet == nil {
		return ErrNoQuestions
	}
	return sheet.Set(questionID, v)
}

// SubmitAnswers submits the composed answers as a normal message.
func (c *Controller) SubmitAnswers(ctx context.Context) (*Exchange, error) {
	sheet := c.Answers()
	if sheet == nil {
		return nil, ErrNoQuestions
	}
	if !sheet.Complete() {
		return nil, ErrAnswersIncomplete
	}
	return c.Submit(ctx, sheet.Compose())
}
