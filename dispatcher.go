// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dispatcher implements a multi-process RPC dispatcher: a
// parent process owns a fixed-size pool of worker child processes, and
// application code invokes named methods on named services with each
// call transparently executed inside some worker and its return value
// or error delivered back to the caller.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/grailbio/base/log"

	"github.com/shahadul-17/dispatcher/internal/correlation"
	"github.com/shahadul-17/dispatcher/internal/pendingqueue"
	"github.com/shahadul-17/dispatcher/wire"
	"github.com/shahadul-17/dispatcher/worker"
)

// drainInterval is the pending-queue drain cadence.
const drainInterval = 5 * time.Millisecond

type phase int32

const (
	idle phase = iota
	starting
	started
	stopped
)

func (p phase) String() string {
	switch p {
	case idle:
		return "Idle"
	case starting:
		return "Starting"
	case started:
		return "Started"
	case stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Dispatcher owns a worker pool and routes Dispatch calls to it. The
// zero value is not usable; construct one with New.
type Dispatcher struct {
	opts Options

	phase     atomic.Int32
	mu        sync.Mutex
	startDone chan struct{}
	startErr  error

	workers     []WorkerHandle
	pending     *pendingqueue.Queue
	correlation *correlation.Registry

	stopCh chan struct{}
	events chan workerEvent

	metrics *metrics

	logMu    sync.Mutex
	logTails map[int]*logBroadcaster
}

type workerEvent struct {
	handle WorkerHandle
	event  worker.Event
}

// New constructs a Dispatcher from the given options. It fails fast if
// ServiceInitializerPath is required and missing or inaccessible; it
// does not spawn any worker -- that happens in Start.
func New(opts ...Option) (*Dispatcher, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		opts:        o,
		pending:     pendingqueue.New(pendingqueue.DefaultCapacity),
		correlation: correlation.New(),
		events:      make(chan workerEvent, 256),
		metrics:     newMetrics(),
		logTails:    make(map[int]*logBroadcaster),
	}
	return d, nil
}

// IsStarted reports whether the dispatcher is currently accepting
// Dispatch calls.
func (d *Dispatcher) IsStarted() bool { return phase(d.phase.Load()) == started }

// ProcessCount returns the configured worker pool size.
func (d *Dispatcher) ProcessCount() int { return d.opts.ProcessCount }

// Options returns the (read-only, by convention) options this
// dispatcher was constructed with.
func (d *Dispatcher) Options() Options { return d.opts }

// Start spawns the worker pool and begins accepting Dispatch calls.
// Calling Start while already Starting blocks until that attempt
// resolves and returns its outcome; calling it while Started is a
// no-op returning nil, satisfying the idempotent-start invariant.
func (d *Dispatcher) Start(ctx context.Context) error {
	for {
		d.mu.Lock()
		switch phase(d.phase.Load()) {
		case started:
			d.mu.Unlock()
			return nil
		case stopped:
			d.mu.Unlock()
			return nil
		case starting:
			done := d.startDone
			d.mu.Unlock()
			select {
			case <-done:
				d.mu.Lock()
				err := d.startErr
				d.mu.Unlock()
				if err != nil {
					return err
				}
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// idle: claim the transition ourselves.
		d.phase.Store(int32(starting))
		d.startDone = make(chan struct{})
		done := d.startDone
		d.mu.Unlock()

		err := d.doStart(ctx)

		d.mu.Lock()
		d.startErr = err
		if err != nil {
			d.phase.Store(int32(idle))
		} else {
			d.phase.Store(int32(started))
		}
		close(done)
		d.mu.Unlock()
		return err
	}
}

func (d *Dispatcher) doStart(ctx context.Context) error {
	factory := d.opts.workerFactory
	if factory == nil {
		factory = realWorkerFactory(d.opts)
	}
	workers := make([]WorkerHandle, d.opts.ProcessCount)
	for i := range workers {
		workers[i] = factory(i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Spawn(gctx) })
	}
	if err := g.Wait(); err != nil {
		return newError(InitializerFailure, fmt.Sprintf("spawning worker pool: %v", err))
	}

	d.workers = workers
	for _, w := range workers {
		go d.forwardEvents(w)
	}
	d.stopCh = make(chan struct{})
	go d.eventLoop()
	go d.drainLoop()
	return nil
}

// Stop marks the dispatcher as no longer accepting new Dispatch calls.
// In-flight requests are not forcibly cancelled; their responses are
// still routed to waiters if they arrive.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if phase(d.phase.Load()) != started {
		return
	}
	d.phase.Store(int32(stopped))
	close(d.stopCh)
}

func (d *Dispatcher) forwardEvents(w WorkerHandle) {
	for ev := range w.Events() {
		d.events <- workerEvent{handle: w, event: ev}
	}
}

func (d *Dispatcher) eventLoop() {
	for we := range d.events {
		d.handleWorkerEvent(we.handle, we.event)
	}
}

func (d *Dispatcher) handleWorkerEvent(w WorkerHandle, ev worker.Event) {
	switch ev.Type {
	case worker.DataReceive:
		d.handlePayload(w, ev.Data)
	case worker.Disconnect, worker.Exit:
		if ev.Err != nil {
			log.Error.Printf("dispatcher: worker %d terminated: %v", w.ProcessID(), ev.Err)
		}
	case worker.Error:
		log.Error.Printf("dispatcher: worker %d error: %v", w.ProcessID(), ev.Err)
	case worker.Close:
	}
}

func (d *Dispatcher) handlePayload(w WorkerHandle, payload wire.Payload) {
	switch p := payload.(type) {
	case *wire.LogMessage:
		d.forwardLog(p)
	case *wire.DispatchResponse:
		if d.correlation.Resolve(p.PayloadID, p.Result) {
			w.DecrementTaskCount(1)
			d.metrics.setTaskCount(w.ProcessID(), w.TaskCount())
			d.metrics.observeCompletion(true)
		} else {
			log.Printf("dispatcher: dropping late response for payload %s", p.PayloadID)
		}
	case *wire.ErrorResponse:
		if p.PayloadID == "" {
			log.Error.Printf("[Process %d] %s", p.ProcessID, p.Message)
			return
		}
		w.DecrementTaskCount(1)
		d.metrics.setTaskCount(w.ProcessID(), w.TaskCount())
		d.metrics.observeCompletion(false)
		if !d.correlation.Reject(p.PayloadID, newRemoteError(p.Message, p.Stack)) {
			log.Printf("dispatcher: dropping late error response for payload %s", p.PayloadID)
		}
	}
}

func (d *Dispatcher) forwardLog(m *wire.LogMessage) {
	d.tailBroadcaster(m.ProcessID).Publish(m.Parameters)
	if !d.metrics.allowLog() {
		return
	}
	switch m.Level {
	case "error", "ERROR":
		log.Error.Printf("[Process %d] %v", m.ProcessID, m.Parameters)
	case "debug", "DEBUG":
		log.Debug.Printf("[Process %d] %v", m.ProcessID, m.Parameters)
	default:
		log.Printf("[Process %d] %v", m.ProcessID, m.Parameters)
	}
}

// maxTailBuffer bounds how much unread output Tail will buffer for a
// slow reader before dropping lines, per logBroadcaster's policy.
const maxTailBuffer = 64 * 1024

func (d *Dispatcher) tailBroadcaster(processID int) *logBroadcaster {
	d.logMu.Lock()
	defer d.logMu.Unlock()
	b, ok := d.logTails[processID]
	if !ok {
		b = newLogBroadcaster(processID, maxTailBuffer, func() { d.metrics.incLogLinesDropped(processID) })
		d.logTails[processID] = b
	}
	return b
}

// Tail streams worker processID's forwarded Log output to the returned
// reader until ctx is done, at which point the pipe is closed and
// further reads return io.EOF. A slow reader does not block delivery to
// any other subscriber; once it falls maxTailBuffer bytes behind,
// further lines are dropped for it.
func (d *Dispatcher) Tail(ctx context.Context, processID int) (io.Reader, error) {
	if processID < 0 || processID >= len(d.workers) {
		return nil, newError(InvalidService, fmt.Sprintf("no such worker process %d", processID))
	}
	r, w := io.Pipe()
	d.tailBroadcaster(processID).Subscribe(w)
	go func() {
		<-ctx.Done()
		w.Close()
	}()
	return r, nil
}

func (d *Dispatcher) drainLoop() {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.drainOnce()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) drainOnce() {
	req, ok := d.pending.Dequeue()
	if !ok {
		return
	}
	w := d.selectWorker()
	if w == nil {
		d.pending.Requeue(req)
		return
	}
	req.ProcessID = w.ProcessID()
	d.metrics.setQueueDepth(d.pending.Len())
	if !w.Send(req) {
		w.DecrementTaskCount(1)
		d.correlation.Reject(req.PayloadID, newError(CommunicationFailure, fmt.Sprintf("worker %d rejected the write", w.ProcessID())))
		return
	}
}

// selectWorker implements least-busy selection: the first Ready
// worker is the initial candidate; any later Ready worker with a
// strictly smaller taskCount replaces it, so ties keep the earlier
// index. The winner's taskCount is incremented before it is returned,
// reserving the slot.
func (d *Dispatcher) selectWorker() WorkerHandle {
	var candidate WorkerHandle
	for _, w := range d.workers {
		if w.State() != worker.Ready {
			continue
		}
		if candidate == nil || w.TaskCount() < candidate.TaskCount() {
			candidate = w
		}
	}
	if candidate == nil {
		return nil
	}
	candidate.IncrementTaskCount(1)
	d.metrics.setTaskCount(candidate.ProcessID(), candidate.TaskCount())
	return candidate
}

// Dispatch invokes task.MethodName on task.ServiceName inside some
// worker in the pool, blocking until the result or error arrives, or
// until ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) (any, error) {
	if !d.IsStarted() {
		return nil, newError(NotStarted, "dispatch called before start")
	}
	if task.ServiceName == "" {
		return nil, newError(InvalidService, "task carries no service name")
	}
	methodName := task.MethodName
	if methodName == "" {
		return nil, newError(InvalidMethod, "task carries a blank method name")
	}

	payloadID := uuid.NewString()
	waiter := d.correlation.Register(payloadID)
	req := &wire.DispatchRequest{
		PayloadID:        payloadID,
		ServiceName:      task.ServiceName,
		ServiceScopeName: task.ServiceScopeName,
		MethodName:       methodName,
		MethodArguments:  task.MethodArguments,
	}
	if err := d.pending.Enqueue(req); err != nil {
		d.correlation.Cancel(payloadID)
		return nil, err
	}
	d.metrics.setQueueDepth(d.pending.Len())

	start := time.Now()
	select {
	case res := <-waiter.C():
		d.metrics.observeDispatchLatency(task.ServiceName, methodName, time.Since(start))
		return res.Value, res.Err
	case <-ctx.Done():
		d.correlation.Cancel(payloadID)
		return nil, ctx.Err()
	}
}
