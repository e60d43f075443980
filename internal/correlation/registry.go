// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package correlation implements the mapping from an in-flight request's
// payloadId to the waiter that will receive its matching response,
// generalized from "wait for a fixed lifecycle state" to an arbitrary,
// dynamically-registered key.
package correlation

import (
	"sync"
)

// Result is what a Waiter receives: either a successful value, or an
// error reconstructed from a worker's Error response.
type Result struct {
	Value any
	Err   error
}

// Waiter is a one-shot handle returned by Register. Exactly one of
// Resolve, Reject, or Cancel will ever complete it.
type Waiter struct {
	c chan Result
}

// C returns the channel that receives this waiter's single Result.
func (w *Waiter) C() <-chan Result { return w.c }

// Registry maps payloadId to the Waiter awaiting its response. It is
// safe for concurrent use: in this dispatcher, Register and Cancel run
// on the goroutines calling Dispatch, Resolve and Reject on the event
// loop, and Reject also on the drain loop (see dispatcher.go).
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*Waiter
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{waiters: make(map[string]*Waiter)}
}

// Register creates and stores a new Waiter for payloadID. It panics if
// payloadID is already registered, since payloadIds must be unique
// process-wide for the dispatcher's lifetime -- a collision indicates a
// bug in the id generator, not a recoverable runtime condition.
func (r *Registry) Register(payloadID string) *Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.waiters[payloadID]; exists {
		panic("correlation: duplicate payloadId " + payloadID)
	}
	w := &Waiter{c: make(chan Result, 1)}
	r.waiters[payloadID] = w
	return w
}

// Resolve delivers a successful value to the waiter registered under
// payloadID, if any. ok is false if no such waiter exists (a late or
// unmatched response, which callers should log and drop).
func (r *Registry) Resolve(payloadID string, value any) (ok bool) {
	w := r.remove(payloadID)
	if w == nil {
		return false
	}
	w.c <- Result{Value: value}
	return true
}

// Reject delivers err to the waiter registered under payloadID, if any.
func (r *Registry) Reject(payloadID string, err error) (ok bool) {
	w := r.remove(payloadID)
	if w == nil {
		return false
	}
	w.c <- Result{Err: err}
	return true
}

// Cancel removes payloadID's waiter without delivering a result, for
// example when a caller's context is done before a response arrives. Any
// response that later arrives for this payloadID is treated as unmatched
// and dropped.
func (r *Registry) Cancel(payloadID string) {
	r.remove(payloadID)
}

// Len returns the number of currently outstanding waiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

func (r *Registry) remove(payloadID string) *Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.waiters[payloadID]
	delete(r.waiters, payloadID)
	return w
}
