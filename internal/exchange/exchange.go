// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/remote"
	"github.com/jeranaias/aidchat/internal/stream"
)

// Exchange is the handle for one in-flight reply.
type Exchange struct {
	seq     uint64
	asm     *stream.Assembler
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	// next and stop come from iter.Pull2 and must not run concurrently.
	mu   sync.Mutex
	next func() (remote.Fragment, error, bool)
	stop func()
	done bool
}

func newExchange(ctx context.Context, seq uint64, asm *stream.Assembler, src iter.Seq2[remote.Fragment, error], cancel context.CancelFunc, started time.Time) *Exchange {
	next, stop := iter.Pull2(src)
	return &Exchange{
		seq:     seq,
		asm:     asm,
		ctx:     ctx,
		cancel:  cancel,
		started: started,
		next:    next,
		stop:    stop,
	}
}

// Message returns the assistant message being filled.
func (ex *Exchange) Message() *model.Message {
	return ex.asm.Message()
}

// Context returns the exchange context. It is cancelled on teardown.
func (ex *Exchange) Context() context.Context {
	return ex.ctx
}

// Next blocks until the next fragment arrives. more is false once the
// stream has ended; a non-nil err is always final. Next does not touch the
// conversation and may be called from a worker goroutine.
func (ex *Exchange) Next() (frag stream.Fragment, more bool, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.done {
		return stream.Fragment{}, false, ex.ctx.Err()
	}
	frag, err, ok := ex.next()
	if !ok || err != nil {
		ex.done = true
		ex.stop()
		return stream.Fragment{}, false, err
	}
	return frag, true, nil
}

// Cancel stops the remote stream. A blocked Next returns promptly with the
// context error.
func (ex *Exchange) Cancel() {
	ex.cancel()
	// release the pull iterator without blocking the caller
	go func() {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		if !ex.done {
			ex.done = true
			ex.stop()
		}
	}()
}
