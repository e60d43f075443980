// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package workerloop implements the worker-side request loop: read a
// request frame from stdin, resolve service+method, invoke, and write
// the result or error back to stdout, with the worker's own log output
// redirected into the framed channel rather than interleaved with it.
package workerloop

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/shahadul-17/dispatcher/internal/frame"
	"github.com/shahadul-17/dispatcher/wire"
)

// Loop is the worker-side counterpart of worker.Endpoint: it owns the
// child process's end of stdin/stdout and drives the request/response
// cycle for that process.
type Loop struct {
	cfg      Config
	provider ServiceProvider
	init     *initState

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
	Logger  *zap.Logger
}

// New returns a Loop that reads requests from in and writes responses to
// out. load resolves the service initializer named by cfg; provider is
// the ServiceProvider the initializer populates.
func New(cfg Config, provider ServiceProvider, load Loader, in io.Reader, out io.Writer) *Loop {
	l := &Loop{cfg: cfg, provider: provider, in: in, out: out}
	l.Logger = NewLogger(l.emitLog)
	l.init = newInitState(cfg, load, provider, l.Logger)
	return l
}

func (l *Loop) emitLog(level string, params []any) {
	l.write(&wire.LogMessage{ProcessID: l.cfg.ProcessID, Level: level, Parameters: params})
}

func (l *Loop) write(p wire.Payload) {
	raw, err := wire.Marshal(p)
	if err != nil {
		// Nothing to frame and nowhere else to report it: this can only
		// happen for a payload type this package never constructs.
		return
	}
	framed := frame.Encode(raw)
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_, _ = l.out.Write(framed)
}

// Run reads and handles requests until in is exhausted or ctx is done.
// Requests are processed one at a time, in the order they were received,
// which is what gives same-worker dispatches their FIFO response
// ordering guarantee.
func (l *Loop) Run(ctx context.Context) error {
	r := bufio.NewReaderSize(l.in, 64*1024)
	dec := frame.NewDecoder()
	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			var requests []*wire.DispatchRequest
			dec.Drain(func(raw []byte) {
				payload, perr := wire.Unmarshal(raw)
				if perr != nil {
					l.Logger.Error("malformed frame", zap.Error(perr))
					return
				}
				if payload == nil {
					return
				}
				if req, ok := payload.(*wire.DispatchRequest); ok {
					requests = append(requests, req)
				}
			})
			for _, req := range requests {
				l.handleRequest(ctx, req)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (l *Loop) handleRequest(ctx context.Context, req *wire.DispatchRequest) {
	if err := l.init.Ensure(ctx); err != nil {
		l.write(&wire.ErrorResponse{PayloadID: req.PayloadID, ProcessID: l.cfg.ProcessID, Message: err.Error()})
		return
	}
	service, ok := l.provider.GetByName(req.ServiceName, req.ServiceScopeName)
	if !ok {
		l.write(&wire.ErrorResponse{
			PayloadID: req.PayloadID,
			ProcessID: l.cfg.ProcessID,
			Message:   fmt.Sprintf("service '%s' is not registered", req.ServiceName),
		})
		return
	}

	result, err := l.invokeSafely(ctx, req.ServiceName, service, req.MethodName, req.MethodArguments)
	if err != nil {
		msg, stack := sanitizeError(err)
		l.write(&wire.ErrorResponse{PayloadID: req.PayloadID, ProcessID: l.cfg.ProcessID, Message: msg, Stack: stack})
		return
	}
	l.write(&wire.DispatchResponse{PayloadID: req.PayloadID, ProcessID: l.cfg.ProcessID, Result: result})
}

// panicError carries both the panic value and the stack captured at
// recovery time, so sanitizeError can report the original call stack
// rather than its own.
type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("%v", e.value) }

// invokeSafely recovers a panicking method so that one bad request
// cannot take down the whole worker process.
func (l *Loop) invokeSafely(ctx context.Context, serviceName string, service any, methodName string, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return invoke(ctx, serviceName, service, methodName, args)
}

// sanitizeError produces the {message, stack} shape required for Error
// responses, the Go analogue of deep-copying and stripping
// non-serializable fields from a thrown exception. When err did not
// originate from a recovered panic, Go attaches no call stack to plain
// errors, so the stack reported is the one at the point of detection.
func sanitizeError(err error) (message, stack string) {
	if pe, ok := err.(*panicError); ok {
		return pe.Error(), pe.stack
	}
	return err.Error(), string(debug.Stack())
}
