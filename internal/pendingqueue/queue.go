// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pendingqueue implements the bounded FIFO of outgoing requests
// awaiting a worker. The dispatcher's caller-facing Dispatch call
// enqueues here rather than writing to a worker's stdin directly; this
// decouples burst ingress from per-worker write cost and gives the
// scheduler a moment to settle on the least-loaded worker after a burst.
package pendingqueue

import (
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/shahadul-17/dispatcher/wire"
)

// DefaultCapacity is the queue's initial capacity, per the dispatcher's
// data model.
const DefaultCapacity = 4096

// ErrFull is returned by Enqueue when the queue is at capacity.
var ErrFull = errors.E(errors.Unavailable, "pendingqueue: queue is full")

// Queue is a bounded, FIFO queue of dispatch requests awaiting a worker.
// It is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    []*wire.DispatchRequest
	capacity int
}

// New returns an empty Queue with the given capacity. A capacity <= 0
// uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends req to the tail of the queue, failing with ErrFull if
// the queue is already at capacity.
func (q *Queue) Enqueue(req *wire.DispatchRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return ErrFull
	}
	q.items = append(q.items, req)
	return nil
}

// Requeue pushes req back onto the head of the queue. It is used when a
// drain attempt could not find a Ready worker, so the request is retried
// on the next tick.
func (q *Queue) Requeue(req *wire.DispatchRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*wire.DispatchRequest{req}, q.items...)
}

// Dequeue removes and returns the item at the head of the queue. ok is
// false if the queue is empty.
func (q *Queue) Dequeue() (req *wire.DispatchRequest, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	req, q.items = q.items[0], q.items[1:]
	return req, true
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
