// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import "time"

// Drop reasons reported to Metrics.SubmissionDropped.
const (
	DropEmpty       = "empty"
	DropBusy        = "busy"
	DropRateLimited = "rate_limited"
)

// Outcomes reported to Metrics.ExchangeFinished.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDetached  = "detached"
)

// Metrics receives controller events. Implementations must be cheap; they
// are called on the owner goroutine.
type Metrics interface {
	SubmissionDropped(reason string)
	ExchangeStarted()
	FragmentApplied()
	ExchangeFinished(outcome string, elapsed time.Duration)
	SessionOpenFailed()
}

type nopMetrics struct{}

func (nopMetrics) SubmissionDropped(string) {}
func (nopMetrics) ExchangeStarted() {}
func (nopMetrics) FragmentApplied() {}
func (nopMetrics) ExchangeFinished(string, time.Duration) {}
func (nopMetrics) SessionOpenFailed() {}
