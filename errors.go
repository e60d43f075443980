// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind classifies the failure taxonomy a Dispatcher surfaces to
// callers, distinct from (but each mapped onto) the smaller closed set
// of errors.Kind values grailbio/base/errors defines.
type Kind int

const (
	// NotStarted: Dispatch was called outside the Started state.
	NotStarted Kind = iota + 1
	// InvalidService: a Task did not carry a usable service name.
	InvalidService
	// InvalidMethod: a Task's method name was blank. A method the
	// worker cannot find on the resolved service is reported by the
	// worker as an Error response and so surfaces as
	// RemoteInvocationFailure.
	InvalidMethod
	// ServiceNotRegistered: no service is registered under the given
	// name/scope. Dispatch does not return this kind: a worker's
	// "service not registered" reply arrives as an Error response and
	// surfaces as RemoteInvocationFailure.
	ServiceNotRegistered
	// CommunicationFailure: Send returned false for the request. A
	// worker that reaches a terminal state does not fail the requests
	// already sent to it; their Dispatch calls wait until ctx is done.
	CommunicationFailure
	// RemoteInvocationFailure: the worker-side method returned an
	// error or panicked; message and stack are preserved verbatim.
	RemoteInvocationFailure
	// FrameDecode: a received frame could not be parsed. Never
	// surfaced to a Dispatch caller; logged and dropped at the point
	// of decode.
	FrameDecode
	// InitializerFailure: New rejected the initializer options, or
	// Start could not spawn the worker pool. A worker that cannot load
	// or run its service initializer replies with an Error response,
	// which surfaces as RemoteInvocationFailure.
	InitializerFailure
)

func (k Kind) String() string {
	switch k {
	case NotStarted:
		return "NotStarted"
	case InvalidService:
		return "InvalidService"
	case InvalidMethod:
		return "InvalidMethod"
	case ServiceNotRegistered:
		return "ServiceNotRegistered"
	case CommunicationFailure:
		return "CommunicationFailure"
	case RemoteInvocationFailure:
		return "RemoteInvocationFailure"
	case FrameDecode:
		return "FrameDecode"
	case InitializerFailure:
		return "InitializerFailure"
	default:
		return "Unknown"
	}
}

// baseKind maps a taxonomy Kind onto the nearest grailbio/base/errors.Kind
// value, so this package's errors still compose with errors.Is/errors.Recover.
func (k Kind) baseKind() errors.Kind {
	switch k {
	case CommunicationFailure:
		return errors.Unavailable
	case RemoteInvocationFailure:
		return errors.Remote
	case FrameDecode, InitializerFailure:
		return errors.Invalid
	default:
		return errors.Precondition
	}
}

// DispatcherError is the error type a failed Dispatch call returns,
// except when ctx is done (ctx.Err() is returned) or the pending queue
// is full (pendingqueue.ErrFull is returned). It wraps a *errors.Error so grailbio/base/errors.Is still works against
// the underlying base kind, while exposing this package's own Kind and,
// for a RemoteInvocationFailure, the worker's original message and
// stack verbatim.
type DispatcherError struct {
	kind    Kind
	message string
	stack   string
	err     error
}

func newError(kind Kind, message string) *DispatcherError {
	return &DispatcherError{kind: kind, message: message, err: errors.E(kind.baseKind(), message)}
}

// newRemoteError reconstructs a DispatcherError from a worker's Error
// response, preserving the original message and stack exactly as
// received.
func newRemoteError(message, stack string) *DispatcherError {
	return &DispatcherError{
		kind:    RemoteInvocationFailure,
		message: message,
		stack:   stack,
		err:     errors.E(errors.Remote, message),
	}
}

func (e *DispatcherError) Error() string {
	return fmt.Sprintf("dispatcher: %s: %s", e.kind, e.message)
}

// Kind returns the taxonomy classification of this error.
func (e *DispatcherError) Kind() Kind { return e.kind }

// Message returns the underlying message, verbatim for a remote
// invocation failure.
func (e *DispatcherError) Message() string { return e.message }

// Stack returns the worker-side call stack for a RemoteInvocationFailure,
// or the empty string for any other kind.
func (e *DispatcherError) Stack() string { return e.stack }

// Unwrap exposes the underlying grailbio/base/errors.Error so this
// package's errors compose with errors.Is/errors.As.
func (e *DispatcherError) Unwrap() error { return e.err }

// IsKind reports whether err is a *DispatcherError of the given Kind.
func IsKind(kind Kind, err error) bool {
	de, ok := err.(*DispatcherError)
	return ok && de.kind == kind
}
