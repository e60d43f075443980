// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package worker implements the parent's handle to a single OS worker
// process: it owns the child's stdin/stdout, frames outgoing writes,
// decodes incoming frames, and republishes lifecycle changes as a
// stream of typed Events, tracked via channel waiters rather than
// callbacks.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/shahadul-17/dispatcher/internal/frame"
	"github.com/shahadul-17/dispatcher/wire"
)

// eventBacklog bounds the endpoint's event channel so a slow subscriber
// cannot stall stdout reads indefinitely; the dispatcher drains it from
// a dedicated forwarding goroutine per worker (forwardEvents in
// dispatcher.go). Events published while it is full are dropped.
const eventBacklog = 256

// Endpoint wraps one OS child process and is exclusively owned by the
// dispatcher that spawned it; it is released once the process terminates.
type Endpoint struct {
	processID int
	command   string
	args      []string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan Event

	state     atomic.Int32
	taskCount atomic.Int32

	writeMu sync.Mutex
}

// New returns an Endpoint for worker processID that, on Spawn, launches
// command with args plus the required --isChildProcess/--processId flags.
func New(processID int, command string, args []string) *Endpoint {
	return &Endpoint{
		processID: processID,
		command:   command,
		args:      args,
		events:    make(chan Event, eventBacklog),
	}
}

// ProcessID returns this worker's stable pool index.
func (e *Endpoint) ProcessID() int { return e.processID }

// State returns the worker's current lifecycle state.
func (e *Endpoint) State() State { return State(e.state.Load()) }

// TaskCount returns the number of inflight requests currently reserved
// on this worker.
func (e *Endpoint) TaskCount() int32 { return e.taskCount.Load() }

// IncrementTaskCount adjusts the inflight counter by step (default 1 if
// step <= 0). It is the scheduler's reservation mechanism.
func (e *Endpoint) IncrementTaskCount(step int32) {
	if step <= 0 {
		step = 1
	}
	e.taskCount.Add(step)
}

// DecrementTaskCount adjusts the inflight counter down by step (default
// 1 if step <= 0), clamping at zero so a spurious extra response can
// never drive the counter negative.
func (e *Endpoint) DecrementTaskCount(step int32) {
	if step <= 0 {
		step = 1
	}
	for {
		cur := e.taskCount.Load()
		next := cur - step
		if next < 0 {
			next = 0
		}
		if e.taskCount.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Events returns the channel on which this worker's lifecycle Events are
// published. The channel is closed once the Close event has been sent.
func (e *Endpoint) Events() <-chan Event { return e.events }

// Spawn launches the OS process and begins reading its stdout. It
// returns once the process has started (or failed to start); it does not
// wait for the worker to finish any application-level initialization --
// that is the concern of workerloop, signaled back over the wire if
// needed.
func (e *Endpoint) Spawn(ctx context.Context) error {
	e.state.Store(int32(Spawning))
	argv := buildArgv(e.processID, e.args)
	cmd := exec.CommandContext(ctx, e.command, argv...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.E(errors.Net, "worker: stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.E(errors.Net, "worker: stdout pipe", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		e.state.Store(int32(Exited))
		return errors.E(errors.Net, fmt.Sprintf("worker %d: spawn", e.processID), err)
	}
	e.cmd = cmd
	e.stdin = stdin
	e.state.Store(int32(Ready))
	e.publish(Event{Type: Spawn, ProcessID: e.processID})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		e.readLoop(stdout)
	}()
	// cmd.Wait must not be called until all reads from the stdout pipe
	// have completed (Cmd.StdoutPipe's own documented requirement), so
	// the exit-watching goroutine waits on readDone first.
	go e.waitLoop(readDone)
	return nil
}

// buildArgv constructs the child's command line per the wire contract:
// --isChildProcess=true --processId=<i>, followed by the caller-provided
// extra args, quoting any value that contains whitespace so a naive
// argument parser on the worker side can round-trip it. (os/exec itself
// needs no such quoting -- argv is passed directly to execve -- but the
// worker's own flag parser is written to expect and strip these quotes,
// per the wire contract's explicit requirement.)
func buildArgv(processID int, extra []string) []string {
	argv := []string{
		"--isChildProcess=true",
		"--processId=" + strconv.Itoa(processID),
	}
	for _, a := range extra {
		if idx := strings.IndexByte(a, '='); idx >= 0 {
			key, val := a[:idx], a[idx+1:]
			if strings.ContainsAny(val, " \t") {
				val = strconv.Quote(val)
			}
			argv = append(argv, key+"="+val)
			continue
		}
		argv = append(argv, a)
	}
	return argv
}

// Send serializes and frames p, then writes it to the worker's stdin.
// Send never blocks waiting for a response; it returns false if the
// write was rejected, which happens once the worker has reached a
// terminal state.
func (e *Endpoint) Send(p wire.Payload) bool {
	if e.State().Terminal() {
		return false
	}
	raw, err := wire.Marshal(p)
	if err != nil {
		log.Error.Printf("worker %d: marshal: %v", e.processID, err)
		return false
	}
	framed := frame.Encode(raw)

	e.writeMu.Lock()
	_, err = e.stdin.Write(framed)
	e.writeMu.Unlock()
	if err != nil {
		e.state.Store(int32(Disconnected))
		e.publish(Event{Type: Disconnect, ProcessID: e.processID, Err: err})
		e.publish(Event{Type: Error, ProcessID: e.processID, Err: err})
		return false
	}
	return true
}

func (e *Endpoint) readLoop(stdout io.ReadCloser) {
	defer stdout.Close()
	r := bufio.NewReaderSize(stdout, 64*1024)
	dec := frame.NewDecoder()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			dec.Drain(func(raw []byte) {
				payload, perr := wire.Unmarshal(raw)
				if perr != nil {
					log.Error.Printf("worker %d: %v", e.processID, frame.ErrMalformedFrame(perr))
					return
				}
				if payload == nil {
					return // non-positive/unknown flag: silently dropped.
				}
				e.publish(Event{Type: DataReceive, ProcessID: e.processID, Data: payload})
			})
		}
		if err != nil {
			return
		}
	}
}

func (e *Endpoint) waitLoop(readDone <-chan struct{}) {
	<-readDone
	err := e.cmd.Wait()
	exitCode := -1
	var exitSignal string
	if e.cmd.ProcessState != nil {
		exitCode = e.cmd.ProcessState.ExitCode()
	}
	prevState := e.State()
	e.state.Store(int32(Exited))
	if err != nil && !prevState.Terminal() {
		e.publish(Event{Type: Error, ProcessID: e.processID, Err: err, ExitCode: exitCode, ExitSignal: exitSignal})
	}
	e.publish(Event{Type: Exit, ProcessID: e.processID, Err: err, ExitCode: exitCode, ExitSignal: exitSignal})
	e.publish(Event{Type: Close, ProcessID: e.processID})
	close(e.events)
}

func (e *Endpoint) publish(ev Event) {
	select {
	case e.events <- ev:
	default:
		log.Error.Printf("worker %d: event backlog full, dropping %v event", e.processID, ev.Type)
	}
}
