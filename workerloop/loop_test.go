package workerloop

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shahadul-17/dispatcher/internal/frame"
	"github.com/shahadul-17/dispatcher/wire"
)

type echoService struct{}

func (echoService) Echo(x string) string { return x }

func (echoService) Boom() (string, error) { return "", errors.New("boom") }

func (echoService) Panic() string { panic("kaboom") }

type fakeInitializer struct {
	register func(p ServiceProvider)
	err      error
}

func (f *fakeInitializer) Initialize(_ context.Context, p ServiceProvider, _ *zap.Logger) error {
	if f.err != nil {
		return f.err
	}
	if f.register != nil {
		f.register(p)
	}
	return nil
}

func newTestLoop(t *testing.T, init *fakeInitializer) (*Loop, *bytes.Buffer) {
	t.Helper()
	provider := NewMapServiceProvider()
	out := new(bytes.Buffer)
	cfg := Config{ProcessID: 0, ServiceInitializerPath: "unused"}
	load := func(Config) (ServiceInitializer, error) { return init, nil }
	return New(cfg, provider, load, nil, out), out
}

func decodeOne(t *testing.T, out *bytes.Buffer) wire.Payload {
	t.Helper()
	dec := frame.NewDecoder()
	dec.Feed(out.Bytes())
	raw, ok := dec.Next()
	if !ok {
		t.Fatal("expected a framed response")
	}
	p, err := wire.Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestHandleRequestEchoSuccess(t *testing.T) {
	init := &fakeInitializer{register: func(p ServiceProvider) {
		p.(*MapServiceProvider).Register("Echo", echoService{})
	}}
	l, out := newTestLoop(t, init)
	l.handleRequest(context.Background(), &wire.DispatchRequest{
		PayloadID: "p1", ServiceName: "Echo", MethodName: "Echo", MethodArguments: []any{"hello"},
	})
	payload := decodeOne(t, out)
	resp, ok := payload.(*wire.DispatchResponse)
	if !ok {
		t.Fatalf("got %T, want *wire.DispatchResponse", payload)
	}
	if resp.PayloadID != "p1" || resp.Result != "hello" {
		t.Errorf("got %+v", resp)
	}
}

func TestHandleRequestUnknownService(t *testing.T) {
	l, out := newTestLoop(t, &fakeInitializer{})
	l.handleRequest(context.Background(), &wire.DispatchRequest{
		PayloadID: "p2", ServiceName: "Nope", MethodName: "X",
	})
	resp, ok := decodeOne(t, out).(*wire.ErrorResponse)
	if !ok {
		t.Fatal("expected an ErrorResponse")
	}
	if resp.PayloadID != "p2" {
		t.Errorf("got payloadId %q, want %q", resp.PayloadID, "p2")
	}
}

func TestHandleRequestUnknownMethodMessageNamesMethodAndService(t *testing.T) {
	init := &fakeInitializer{register: func(p ServiceProvider) {
		p.(*MapServiceProvider).Register("Echo", echoService{})
	}}
	l, out := newTestLoop(t, init)
	l.handleRequest(context.Background(), &wire.DispatchRequest{
		PayloadID: "p3", ServiceName: "Echo", MethodName: "does_not_exist",
	})
	resp, ok := decodeOne(t, out).(*wire.ErrorResponse)
	if !ok {
		t.Fatal("expected an ErrorResponse")
	}
	if !strings.Contains(resp.Message, "does_not_exist") || !strings.Contains(resp.Message, "Echo") {
		t.Errorf("got message %q, want it to name both the method and the service", resp.Message)
	}
}

func TestHandleRequestMethodError(t *testing.T) {
	init := &fakeInitializer{register: func(p ServiceProvider) {
		p.(*MapServiceProvider).Register("Echo", echoService{})
	}}
	l, out := newTestLoop(t, init)
	l.handleRequest(context.Background(), &wire.DispatchRequest{
		PayloadID: "p4", ServiceName: "Echo", MethodName: "Boom",
	})
	resp, ok := decodeOne(t, out).(*wire.ErrorResponse)
	if !ok {
		t.Fatal("expected an ErrorResponse")
	}
	if resp.Message != "boom" {
		t.Errorf("got %q, want %q", resp.Message, "boom")
	}
}

func TestHandleRequestRecoversPanic(t *testing.T) {
	init := &fakeInitializer{register: func(p ServiceProvider) {
		p.(*MapServiceProvider).Register("Echo", echoService{})
	}}
	l, out := newTestLoop(t, init)
	l.handleRequest(context.Background(), &wire.DispatchRequest{
		PayloadID: "p5", ServiceName: "Echo", MethodName: "Panic",
	})
	resp, ok := decodeOne(t, out).(*wire.ErrorResponse)
	if !ok {
		t.Fatal("expected an ErrorResponse for a panicking method")
	}
	if resp.Stack == "" {
		t.Error("expected a non-empty stack for a recovered panic")
	}
}

func TestInitializationRetriesAfterFailure(t *testing.T) {
	calls := 0
	init := &fakeInitializer{}
	l, out := newTestLoop(t, init)
	l.init.load = func(Config) (ServiceInitializer, error) {
		calls++
		if calls == 1 {
			return &fakeInitializer{err: errors.New("init failed")}, nil
		}
		return &fakeInitializer{register: func(p ServiceProvider) {
			p.(*MapServiceProvider).Register("Echo", echoService{})
		}}, nil
	}

	l.handleRequest(context.Background(), &wire.DispatchRequest{PayloadID: "p6", ServiceName: "Echo", MethodName: "Echo", MethodArguments: []any{"x"}})
	resp1, ok := decodeOne(t, out).(*wire.ErrorResponse)
	if !ok || resp1.PayloadID != "p6" {
		t.Fatalf("expected first attempt to fail with an ErrorResponse, got %+v", resp1)
	}

	out.Reset()
	l.handleRequest(context.Background(), &wire.DispatchRequest{PayloadID: "p7", ServiceName: "Echo", MethodName: "Echo", MethodArguments: []any{"y"}})
	resp2, ok := decodeOne(t, out).(*wire.DispatchResponse)
	if !ok {
		t.Fatalf("expected the retry to succeed, got %+v", resp2)
	}
	if resp2.Result != "y" {
		t.Errorf("got %v, want %v", resp2.Result, "y")
	}
	if calls != 2 {
		t.Errorf("expected the loader to be retried exactly once more, got %d calls", calls)
	}
}
