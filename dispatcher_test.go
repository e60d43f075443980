// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shahadul-17/dispatcher/dispatchertest"
	"github.com/shahadul-17/dispatcher/wire"
)

func newTestDispatcher(t *testing.T, workers ...*dispatchertest.FakeWorker) *Dispatcher {
	t.Helper()
	i := 0
	d, err := New(
		ProcessCount(len(workers)),
		WithWorkerFactory(func(processID int) WorkerHandle {
			w := workers[i]
			i++
			return w
		}),
	)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	return d
}

func echoHandler(req *wire.DispatchRequest) (any, error) {
	return req.MethodArguments[0], nil
}

// Single worker echo round trip: the result comes back unchanged and
// the worker's task count returns to zero once it resolves.
func TestEchoRoundTrip(t *testing.T) {
	w := dispatchertest.New(0, echoHandler)
	d := newTestDispatcher(t, w)

	result, err := d.Dispatch(context.Background(), Task{
		ServiceName: "Echo", MethodName: "echo", MethodArguments: []any{"hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", result)

	require.Eventually(t, func() bool { return w.TaskCount() == 0 }, time.Second, time.Millisecond)
}

// Two workers, four concurrent slow calls: both workers get used rather
// than one worker serializing all four.
func TestConcurrentDispatchUsesBothWorkers(t *testing.T) {
	sleepHandler := func(req *wire.DispatchRequest) (any, error) { return nil, nil }
	w0 := dispatchertest.New(0, sleepHandler)
	w0.Delay = 50 * time.Millisecond
	w1 := dispatchertest.New(1, sleepHandler)
	w1.Delay = 50 * time.Millisecond
	d := newTestDispatcher(t, w0, w1)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), Task{ServiceName: "Sleep", MethodName: "sleep", MethodArguments: []any{50}})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	require.Equal(t, 2, w0.SentCount())
	require.Equal(t, 2, w1.SentCount())
	require.Less(t, elapsed, 150*time.Millisecond, "4 calls across 2 workers at 50ms each should take roughly 2x50ms, not 4x50ms")
}

// A worker reporting a thrown error: DispatcherError preserves its
// message and stack verbatim.
func TestRemoteInvocationFailurePreservesMessageAndStack(t *testing.T) {
	const stack = "goroutine 1 [running]:\nmain.boom()"
	w := dispatchertest.New(0, func(req *wire.DispatchRequest) (any, error) {
		return nil, &dispatchertest.StackError{Message: "boom", Stack: stack}
	})
	d := newTestDispatcher(t, w)

	_, err := d.Dispatch(context.Background(), Task{ServiceName: "Boom", MethodName: "boom"})
	require.Error(t, err)
	de, ok := err.(*DispatcherError)
	require.True(t, ok)
	require.Equal(t, RemoteInvocationFailure, de.Kind())
	require.Equal(t, "boom", de.Message())
	require.Equal(t, stack, de.Stack())
}

// An unknown method on a registered service: the resulting error names
// both the method and the service.
func TestUnknownMethodMessageNamesMethodAndService(t *testing.T) {
	w := dispatchertest.New(0, func(req *wire.DispatchRequest) (any, error) {
		return nil, &dispatchertest.StackError{Message: "method 'does_not_exist' does not belong to service 'Echo'"}
	})
	d := newTestDispatcher(t, w)

	_, err := d.Dispatch(context.Background(), Task{ServiceName: "Echo", MethodName: "does_not_exist"})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "does_not_exist"))
	require.True(t, strings.Contains(err.Error(), "Echo"))
}

// Dispatch called before Start is rejected, with no worker spawned.
func TestDispatchBeforeStartIsRejected(t *testing.T) {
	d, err := New(WithWorkerFactory(func(processID int) WorkerHandle {
		t.Fatal("no worker should be spawned by a Dispatch call")
		return nil
	}))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), Task{ServiceName: "Echo", MethodName: "echo"})
	require.Error(t, err)
	require.True(t, IsKind(NotStarted, err))
}

func TestDispatchRejectsBlankServiceAndMethod(t *testing.T) {
	w := dispatchertest.New(0, echoHandler)
	d := newTestDispatcher(t, w)

	_, err := d.Dispatch(context.Background(), Task{MethodName: "echo"})
	require.True(t, IsKind(InvalidService, err))

	_, err = d.Dispatch(context.Background(), Task{ServiceName: "Echo"})
	require.True(t, IsKind(InvalidMethod, err))
}

// Invariant 6: least-busy selection picks the strictly-least-busy worker.
func TestLeastBusySelectionPicksStrictlyLeastLoadedWorker(t *testing.T) {
	w0 := dispatchertest.New(0, echoHandler)
	w1 := dispatchertest.New(1, echoHandler)
	w2 := dispatchertest.New(2, echoHandler)
	d := newTestDispatcher(t, w0, w1, w2)

	w0.IncrementTaskCount(5)
	w1.IncrementTaskCount(1)
	w2.IncrementTaskCount(5)

	_, err := d.Dispatch(context.Background(), Task{ServiceName: "Echo", MethodName: "echo", MethodArguments: []any{"x"}})
	require.NoError(t, err)
	require.Equal(t, 1, w1.SentCount())
	require.Equal(t, 0, w0.SentCount())
	require.Equal(t, 0, w2.SentCount())
}

// Invariant 7: idempotent start.
func TestIdempotentStart(t *testing.T) {
	w := dispatchertest.New(0, echoHandler)
	d := newTestDispatcher(t, w)

	require.NoError(t, d.Start(context.Background()))
	require.Equal(t, 1, d.ProcessCount())
	require.True(t, d.IsStarted())
}

func TestConcurrentStartConvergesOnSameOutcome(t *testing.T) {
	w := dispatchertest.New(0, echoHandler)
	d, err := New(ProcessCount(1), WithWorkerFactory(func(processID int) WorkerHandle { return w }))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Start(context.Background())
		}(i)
	}
	wg.Wait()
	for _, e := range errs {
		require.NoError(t, e)
	}
	require.True(t, d.IsStarted())
	d.Stop()
}

func TestStopMarksDispatcherNotStarted(t *testing.T) {
	w := dispatchertest.New(0, echoHandler)
	d := newTestDispatcher(t, w)
	d.Stop()
	require.False(t, d.IsStarted())
}

func TestServiceProxyBindForwardsToDispatch(t *testing.T) {
	w := dispatchertest.New(0, echoHandler)
	d := newTestDispatcher(t, w)

	var client struct {
		Echo func(ctx context.Context, x string) (string, error)
	}
	d.Get("Echo", "").Bind(&client)

	result, err := client.Echo(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "hi", result)
}
