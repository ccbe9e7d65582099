/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package syncbridge lets a caller that cannot yield (standing in for the
// child's synchronous module-load hook) block on the result of an
// asynchronous operation performed by a detached worker goroutine. It is the
// Go expression of the SharedArrayBuffer-plus-Atomics.wait/notify mechanism
// a host runtime's synchronous require() hook would otherwise need: one
// shared slot per call, a futex-style wait with timeout, and a
// store-then-notify completion order.
//
// Wiring this into a live synchronous loader hook inside a child runtime
// process is the assumed external integration point; this package only
// implements and tests the blocking mechanism itself.
package syncbridge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// WaitStatus mirrors Atomics.wait's three outcomes.
type WaitStatus int

const (
	StatusOK WaitStatus = iota
	StatusNotEqual
	StatusTimedOut
)

// CallTimeout is the hard timeout on a single bridged call. Fatal when
// exceeded: the host is assumed to be stuck.
const CallTimeout = 60 * time.Second

// ErrSyncBridgeTimeout is returned when a call's wait exceeds CallTimeout.
var ErrSyncBridgeTimeout = errors.New("syncbridge: wait timed out after 60s")

// ErrSyncBridgeProtocol is returned when a wait yields neither ok nor
// not-equal, or when the received result's id doesn't match the call's id.
var ErrSyncBridgeProtocol = errors.New("syncbridge: protocol violation")

// SharedSlot is a single 32-bit shared memory word, allocated fresh per
// call. Using a fresh slot per call (rather than one slot reused across
// calls) eliminates cross-call wakeups: a waiter can never be woken by a
// notify meant for a different call.
type SharedSlot struct {
	value atomic.Int32
	ch    chan struct{}
}

// NewSharedSlot returns a slot initialized to zero.
func NewSharedSlot() *SharedSlot {
	return &SharedSlot{ch: make(chan struct{})}
}

// Notify increments the slot then wakes every waiter. The increment-before-
// wake order is load-bearing: it handles the race where a wait begins after
// the worker already completed: the wait's pre-check of the value observes
// the change and fails fast with not-equal instead of blocking until the
// timeout.
func (s *SharedSlot) Notify() {
	s.value.Add(1)
	close(s.ch)
}

// Wait blocks until the slot's value differs from expected, the slot is
// notified, or timeout elapses.
func (s *SharedSlot) Wait(expected int32, timeout time.Duration) WaitStatus {
	if s.value.Load() != expected {
		return StatusNotEqual
	}
	select {
	case <-s.ch:
		return StatusOK
	case <-time.After(timeout):
		return StatusTimedOut
	}
}

// Doer performs the asynchronous operation a call blocks on: in
// production, an HTTP-style round trip to the parent's IPC server.
type Doer func(ctx context.Context, sourcePath string) (map[string]string, error)

type job struct {
	id     uint64
	path   string
	slot   *SharedSlot
	result chan callResult
}

type callResult struct {
	id     uint64
	output map[string]string
	err    error
}

// Worker is the child-side auxiliary goroutine that performs bridged calls
// on behalf of the caller that cannot yield. It is an ordinary goroutine,
// not tracked by any WaitGroup: its existence alone must never prevent
// process exit.
type Worker struct {
	doer   Doer
	jobs   chan job
	nextID atomic.Uint64
}

// NewWorker starts a worker that performs async operations via doer.
func NewWorker(doer Doer) *Worker {
	w := &Worker{doer: doer, jobs: make(chan job)}
	go w.run()
	return w
}

func (w *Worker) run() {
	for j := range w.jobs {
		out, err := w.doer(context.Background(), j.path)
		j.result <- callResult{id: j.id, output: out, err: err}
		j.slot.Notify()
	}
}

// Call blocks the calling goroutine, standing in for the child's
// synchronous loader hook, until the worker completes sourcePath's round
// trip or CallTimeout elapses.
func (w *Worker) Call(sourcePath string) (map[string]string, error) {
	id := w.nextID.Add(1)
	slot := NewSharedSlot()
	j := job{id: id, path: sourcePath, slot: slot, result: make(chan callResult, 1)}

	w.jobs <- j

	switch slot.Wait(0, CallTimeout) {
	case StatusTimedOut:
		return nil, ErrSyncBridgeTimeout
	case StatusOK, StatusNotEqual:
		// proceed to receive the result posted alongside the notify
	default:
		return nil, ErrSyncBridgeProtocol
	}

	res := <-j.result
	if res.id != id {
		return nil, ErrSyncBridgeProtocol
	}
	return res.output, res.err
}
