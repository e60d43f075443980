// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/shahadul-17/dispatcher/internal/logprefix"
)

// fanoutWriter is one subscriber's buffered tail of a logBroadcaster's
// output. Writes are applied asynchronously; once more than maxBuffer
// bytes are pending, further writes are dropped until the backlog
// shrinks, so one slow Tail subscriber never backs up worker log
// delivery for anyone else.
type fanoutWriter struct {
	w         io.Writer
	maxBuffer int
	mu        sync.Mutex
	cond      *sync.Cond
	bufs      [][]byte
	pending   int
	err       error
}

func newFanoutWriter(w io.Writer, maxBuffer int) *fanoutWriter {
	fw := &fanoutWriter{w: w, maxBuffer: maxBuffer}
	fw.cond = sync.NewCond(&fw.mu)
	return fw
}

func (w *fanoutWriter) run() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.err == nil {
		for len(w.bufs) == 0 {
			w.cond.Wait()
		}
		buf := w.bufs[0]
		w.bufs = w.bufs[1:]
		w.mu.Unlock()
		_, err := w.w.Write(buf)
		w.mu.Lock()
		w.err = err
		w.pending -= len(buf)
		w.cond.Broadcast()
	}
	return w.err
}

func (w *fanoutWriter) enqueue(p []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return false
	}
	if len(p)+w.pending > w.maxBuffer {
		return false
	}
	w.pending += len(p)
	w.bufs = append(w.bufs, p)
	w.cond.Broadcast()
	return true
}

func (w *fanoutWriter) flush() {
	w.mu.Lock()
	for w.err == nil && w.pending > 0 {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// logBroadcaster is an io.Writer that copies every write to zero or
// more subscriber writers, each fed asynchronously through its own
// fanoutWriter so a stalled subscriber cannot block the forwarder that
// is routing a worker's Log payloads. Dispatcher keeps one per worker,
// keyed by that worker's process ID, to back both Tail and Publish.
type logBroadcaster struct {
	processID int
	onDrop    func()

	mu        sync.Mutex
	writers   map[*fanoutWriter]bool
	maxBuffer int
}

// newLogBroadcaster returns a broadcaster for processID. onDrop, if
// non-nil, is called once for every line dropped for a subscriber whose
// backlog would otherwise exceed maxBuffer bytes; dispatcher.go wires this to
// a per-process Prometheus counter.
func newLogBroadcaster(processID, maxBuffer int, onDrop func()) *logBroadcaster {
	return &logBroadcaster{
		processID: processID,
		onDrop:    onDrop,
		writers:   make(map[*fanoutWriter]bool),
		maxBuffer: maxBuffer,
	}
}

// Publish formats one forwarded Log payload's parameters as a single
// process-tagged line and fans it out to every Tail subscriber. This is
// the one place a wire.LogMessage's parameters become the text a
// subscriber actually sees, so callers never have to build their own
// prefix.
func (b *logBroadcaster) Publish(parameters []any) {
	var line bytes.Buffer
	pw := logprefix.New(&line, b.processID)
	_, _ = fmt.Fprintf(pw, "%v\n", parameters)
	_, _ = b.Write(line.Bytes())
}

// Subscribe begins copying every future Write to w, until w returns an
// error.
func (b *logBroadcaster) Subscribe(w io.Writer) {
	fw := newFanoutWriter(w, b.maxBuffer)
	b.mu.Lock()
	b.writers[fw] = true
	b.mu.Unlock()
	go func() {
		_ = fw.run()
		b.mu.Lock()
		delete(b.writers, fw)
		b.mu.Unlock()
	}()
}

// Flush returns once every currently subscribed writer has drained its
// backlog.
func (b *logBroadcaster) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for fw := range b.writers {
		fw.flush()
	}
}

// Write fans p out to every subscriber, dropping it for subscribers
// already over their backlog limit and reporting each such drop via
// onDrop. It always reports success to its caller: a dropped tail line
// is not a failure of the worker log pipeline.
func (b *logBroadcaster) Write(p []byte) (n int, err error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	b.mu.Lock()
	for fw := range b.writers {
		if !fw.enqueue(buf) && b.onDrop != nil {
			b.onDrop()
		}
	}
	b.mu.Unlock()
	return len(p), nil
}
