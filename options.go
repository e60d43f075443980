// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"fmt"
	"os"
)

// Options configures a Dispatcher at construction time. It is built up
// with functional Option values the way bigmachine.Start takes Option
// values to configure a *B.
type Options struct {
	// ProcessCount is the size of the worker pool. Coerced to at least
	// 1 if unset or negative.
	ProcessCount int

	// Command is the executable spawned for each worker. Defaults to
	// the running executable (os.Executable()), re-executed with
	// --isChildProcess=true.
	Command string

	// ServiceInitializerPath names the worker-side module that
	// populates a worker's service provider. Required; validated to
	// exist at construction time.
	ServiceInitializerPath string
	// ServiceInitializerClassName optionally selects a named export
	// from ServiceInitializerPath.
	ServiceInitializerClassName string

	// ExtraArgs are passed through to every worker's command line, after
	// the required --isChildProcess/--processId flags and before the
	// service-initializer flags. A key=value entry whose value contains
	// whitespace is quoted.
	ExtraArgs []string

	// workerFactory overrides how a WorkerHandle is constructed for a
	// given process index. Nil selects the real os/exec-backed worker;
	// tests (see dispatchertest) supply an in-process fake here.
	workerFactory func(processID int) WorkerHandle
}

// Option mutates Options during construction.
type Option func(*Options)

// ProcessCount sets the worker pool size.
func ProcessCount(n int) Option {
	return func(o *Options) { o.ProcessCount = n }
}

// Command sets the executable spawned for each worker, along with any
// argv entries that should precede the service-initializer flags.
func Command(path string, extraArgs ...string) Option {
	return func(o *Options) {
		o.Command = path
		o.ExtraArgs = extraArgs
	}
}

// ServiceInitializerPath sets the required worker-side initializer
// module path.
func ServiceInitializerPath(path string) Option {
	return func(o *Options) { o.ServiceInitializerPath = path }
}

// ServiceInitializerClassName selects a named export from the
// initializer module, instead of its default export.
func ServiceInitializerClassName(name string) Option {
	return func(o *Options) { o.ServiceInitializerClassName = name }
}

// WithWorkerFactory overrides worker construction, the Go analogue of
// swapping bigmachine's pluggable System implementation (local vs. EC2
// vs. testsystem) for an in-process fake. Exported so dispatchertest
// can supply a fake WorkerHandle without spawning real OS processes.
func WithWorkerFactory(factory func(processID int) WorkerHandle) Option {
	return func(o *Options) { o.workerFactory = factory }
}

func newOptions(opts []Option) (Options, error) {
	o := Options{ProcessCount: 1}
	for _, apply := range opts {
		apply(&o)
	}
	if o.ProcessCount < 1 {
		o.ProcessCount = 1
	}
	if o.workerFactory == nil {
		if o.ServiceInitializerPath == "" {
			return Options{}, newError(InitializerFailure, "dispatcher: missing required ServiceInitializerPath option")
		}
		if _, err := os.Stat(o.ServiceInitializerPath); err != nil {
			return Options{}, newError(InitializerFailure, fmt.Sprintf("dispatcher: serviceInitializerPath %q is not accessible: %v", o.ServiceInitializerPath, err))
		}
		if o.Command == "" {
			exe, err := os.Executable()
			if err != nil {
				return Options{}, newError(InitializerFailure, fmt.Sprintf("dispatcher: resolving default worker command: %v", err))
			}
			o.Command = exe
		}
	}
	return o, nil
}

func (o Options) workerArgs() []string {
	args := make([]string, 0, len(o.ExtraArgs)+2)
	args = append(args, o.ExtraArgs...)
	args = append(args, "--serviceInitializerPath="+o.ServiceInitializerPath)
	if o.ServiceInitializerClassName != "" {
		args = append(args, "--serviceInitializerClassName="+o.ServiceInitializerClassName)
	}
	return args
}
