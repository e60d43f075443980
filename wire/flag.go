// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package wire defines the on-wire contract shared by the dispatcher
// process and its worker processes: the payload schema and the flag
// enum that disambiguates a payload's purpose.
package wire

// Flag identifies the purpose of a Payload crossing the parent/worker
// boundary. Values are positive by convention; zero and negative values
// are never produced and are silently ignored on receipt.
type Flag int

const (
	// Dispatch marks a request (parent to worker) or a successful
	// response (worker to parent) carrying a method's return value.
	Dispatch Flag = 1
	// Available is a worker-initiated availability signal. It is not
	// required by the least-busy scheduler this dispatcher implements,
	// but the value is reserved so a busy-bit-based worker binary can
	// still speak this wire format without breaking framing.
	Available Flag = 2
	// Error marks a failure response, or an out-of-band error not tied
	// to any particular request.
	Error Flag = 3
	// Log carries a worker's redirected log output.
	Log Flag = 4
)

// Valid reports whether f is a known, positive flag value.
func (f Flag) Valid() bool {
	switch f {
	case Dispatch, Available, Error, Log:
		return true
	default:
		return false
	}
}

// String returns a human-readable name for f, used in logs.
func (f Flag) String() string {
	switch f {
	case Dispatch:
		return "DISPATCH"
	case Available:
		return "AVAILABLE"
	case Error:
		return "ERROR"
	case Log:
		return "LOG"
	default:
		return "UNKNOWN"
	}
}
