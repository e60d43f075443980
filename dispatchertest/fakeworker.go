// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dispatchertest provides an in-process stand-in for a real
// worker process, for deterministic dispatcher tests that do not need
// to spawn an OS process.
package dispatchertest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shahadul-17/dispatcher/wire"
	"github.com/shahadul-17/dispatcher/worker"
)

// Handler resolves a dispatch request the way workerloop would on a
// real worker: given the request, it returns the method's result or an
// error. Tests supply whatever per-scenario behavior they need
// directly, bypassing service-provider/reflection indirection.
type Handler func(req *wire.DispatchRequest) (any, error)

// StackError lets a Handler report a {message, stack} pair, the
// in-process analogue of a worker recovering a panic into a structured
// error response.
type StackError struct {
	Message string
	Stack   string
}

func (e *StackError) Error() string { return e.Message }

// FakeWorker implements dispatcher.WorkerHandle without spawning an OS
// process. Spawn marks it Ready immediately; Send resolves the request
// asynchronously through Handler, after an optional artificial Delay,
// and publishes the matching Dispatch or Error event the way a real
// worker.Endpoint would after decoding one from its child's stdout.
type FakeWorker struct {
	processID int
	handler   Handler
	// Delay simulates a worker that takes time to process a request,
	// for scenarios that exercise concurrent worker selection (e.g. a
	// sleep(ms) service dispatched to two workers at once).
	Delay time.Duration

	state     atomic.Int32
	taskCount atomic.Int32
	events    chan worker.Event

	mu   sync.Mutex
	sent []*wire.DispatchRequest
}

// New returns a FakeWorker for processID that resolves every
// DispatchRequest sent to it through handler.
func New(processID int, handler Handler) *FakeWorker {
	return &FakeWorker{processID: processID, handler: handler, events: make(chan worker.Event, 64)}
}

func (w *FakeWorker) ProcessID() int              { return w.processID }
func (w *FakeWorker) State() worker.State         { return worker.State(w.state.Load()) }
func (w *FakeWorker) TaskCount() int32            { return w.taskCount.Load() }
func (w *FakeWorker) Events() <-chan worker.Event { return w.events }

// IncrementTaskCount mirrors worker.Endpoint's reservation counter.
func (w *FakeWorker) IncrementTaskCount(step int32) {
	if step <= 0 {
		step = 1
	}
	w.taskCount.Add(step)
}

// DecrementTaskCount mirrors worker.Endpoint's clamped-at-zero release.
func (w *FakeWorker) DecrementTaskCount(step int32) {
	if step <= 0 {
		step = 1
	}
	for {
		cur := w.taskCount.Load()
		next := cur - step
		if next < 0 {
			next = 0
		}
		if w.taskCount.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Spawn marks the fake worker Ready and publishes a Spawn event.
func (w *FakeWorker) Spawn(ctx context.Context) error {
	w.state.Store(int32(worker.Ready))
	w.publish(worker.Event{Type: worker.Spawn, ProcessID: w.processID})
	return nil
}

// Send accepts a DispatchRequest and resolves it asynchronously. It
// returns false (simulating a rejected write) if the worker is not
// Ready, or if p is not a DispatchRequest.
func (w *FakeWorker) Send(p wire.Payload) bool {
	req, ok := p.(*wire.DispatchRequest)
	if !ok || worker.State(w.state.Load()) != worker.Ready {
		return false
	}
	w.mu.Lock()
	w.sent = append(w.sent, req)
	w.mu.Unlock()
	go w.process(req)
	return true
}

func (w *FakeWorker) process(req *wire.DispatchRequest) {
	if w.Delay > 0 {
		time.Sleep(w.Delay)
	}
	result, err := w.handler(req)
	if err != nil {
		message, stack := err.Error(), ""
		if se, ok := err.(*StackError); ok {
			message, stack = se.Message, se.Stack
		}
		w.publish(worker.Event{Type: worker.DataReceive, ProcessID: w.processID, Data: &wire.ErrorResponse{
			PayloadID: req.PayloadID, ProcessID: w.processID, Message: message, Stack: stack,
		}})
		return
	}
	w.publish(worker.Event{Type: worker.DataReceive, ProcessID: w.processID, Data: &wire.DispatchResponse{
		PayloadID: req.PayloadID, ProcessID: w.processID, Result: result,
	}})
}

func (w *FakeWorker) publish(ev worker.Event) {
	select {
	case w.events <- ev:
	default:
	}
}

// Disconnect forces the fake worker into the Disconnected terminal
// state and publishes the matching event, for testing
// CommunicationFailure paths without a real stdin write failure.
func (w *FakeWorker) Disconnect() {
	w.state.Store(int32(worker.Disconnected))
	w.publish(worker.Event{Type: worker.Disconnect, ProcessID: w.processID})
}

// SentCount returns how many requests this worker has received, for
// assertions like "both workers were picked."
func (w *FakeWorker) SentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sent)
}
