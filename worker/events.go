// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package worker

import "github.com/shahadul-17/dispatcher/wire"

// State enumerates the possible states of a worker, as seen by the
// parent. States proceed largely monotonically; the only way back out of
// Ready is into one of the two terminal states.
//
//	Unspawned --spawn()--> Spawning --OS spawn succeeds--> Ready
//	Ready --stdin write fails--> Disconnected
//	Ready --OS exit/close--> Exited
type State int32

const (
	// Unspawned indicates Spawn has not yet been called.
	Unspawned State = iota
	// Spawning indicates the OS process is being launched.
	Spawning
	// Ready indicates the worker has spawned and can accept requests.
	Ready
	// Disconnected indicates a write to the worker's stdin failed. This
	// is a terminal state.
	Disconnected
	// Exited indicates the OS process has exited. This is a terminal
	// state.
	Exited
)

// String returns a State's name, used in logs.
func (s State) String() string {
	switch s {
	case Unspawned:
		return "UNSPAWNED"
	case Spawning:
		return "SPAWNING"
	case Ready:
		return "READY"
	case Disconnected:
		return "DISCONNECTED"
	case Exited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is a terminal state: once reached, the
// worker is unusable and Send always returns false.
func (s State) Terminal() bool {
	return s == Disconnected || s == Exited
}

// EventType identifies the kind of lifecycle Event a worker Endpoint can
// emit.
type EventType int

const (
	// Spawn fires once, when the OS process has successfully launched.
	Spawn EventType = iota
	// Disconnect fires when a write to the worker's stdin fails.
	Disconnect
	// DataReceive fires for every decoded payload read from the
	// worker's stdout.
	DataReceive
	// Error fires alongside Disconnect/Exit/Close when a failure has an
	// associated error value worth surfacing.
	Error
	// Exit fires when the OS process has exited.
	Exit
	// Close fires once the worker's stdio streams have been fully
	// drained and closed, after Exit.
	Close
)

// Event is the argument record delivered to every worker lifecycle
// subscriber.
type Event struct {
	Type       EventType
	ProcessID  int
	Data       wire.Payload
	Err        error
	ExitCode   int
	ExitSignal string
}
