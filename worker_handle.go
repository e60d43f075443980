// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"

	"github.com/shahadul-17/dispatcher/wire"
	"github.com/shahadul-17/dispatcher/worker"
)

// WorkerHandle is the subset of worker.Endpoint the dispatcher core
// depends on. It exists so the pool can be driven by an in-process fake
// during tests (see dispatchertest) without spawning real OS processes.
type WorkerHandle interface {
	ProcessID() int
	State() worker.State
	TaskCount() int32
	IncrementTaskCount(step int32)
	DecrementTaskCount(step int32)
	Events() <-chan worker.Event
	Spawn(ctx context.Context) error
	Send(p wire.Payload) bool
}

// realWorkerFactory returns the os/exec-backed WorkerHandle
// constructor used whenever Options.workerFactory is unset.
func realWorkerFactory(o Options) func(processID int) WorkerHandle {
	args := o.workerArgs()
	return func(processID int) WorkerHandle {
		return worker.New(processID, o.Command, args)
	}
}
