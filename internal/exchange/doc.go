// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package exchange drives one user submission through to a finished
// assistant message.
//
// A Controller owns the conversation and is the only code that mutates it.
// Every method except Exchange.Next must be called from the owning goroutine
// (the Bubble Tea Update loop or the REPL loop). Next blocks on the remote
// stream and may run on a worker goroutine; its results are handed back to
// the owner, which calls Apply, Complete or Fail.
//
// Lifecycle of an exchange:
//
//	Idle -> Sending -> Streaming -> Completed | Failed -> Idle
//
// Submissions that arrive while an exchange is in flight, that are blank, or
// that come sooner than MinInterval after the last accepted submission are
// dropped without any visible effect.
package exchange
