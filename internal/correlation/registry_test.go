package correlation

import (
	"errors"
	"testing"
)

func TestResolveDeliversValue(t *testing.T) {
	r := New()
	w := r.Register("p1")
	if !r.Resolve("p1", "hello") {
		t.Fatal("expected Resolve to find the waiter")
	}
	result := <-w.C()
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Value != "hello" {
		t.Errorf("got %v, want %v", result.Value, "hello")
	}
}

func TestRejectDeliversError(t *testing.T) {
	r := New()
	w := r.Register("p2")
	wantErr := errors.New("boom")
	if !r.Reject("p2", wantErr) {
		t.Fatal("expected Reject to find the waiter")
	}
	result := <-w.C()
	if result.Err != wantErr {
		t.Errorf("got %v, want %v", result.Err, wantErr)
	}
}

func TestResponseUniqueness(t *testing.T) {
	r := New()
	r.Register("p3")
	if !r.Resolve("p3", 1) {
		t.Fatal("first resolve should find the waiter")
	}
	if r.Resolve("p3", 2) {
		t.Error("second resolve for the same payloadId should find nothing: response uniqueness")
	}
	if r.Reject("p3", errors.New("late")) {
		t.Error("late reject for a resolved payloadId should find nothing")
	}
}

func TestCancelDropsLateResponse(t *testing.T) {
	r := New()
	r.Register("p4")
	r.Cancel("p4")
	if r.Resolve("p4", "late") {
		t.Error("resolve after cancel should find nothing")
	}
}

func TestRegisterDuplicatePayloadIDPanics(t *testing.T) {
	r := New()
	r.Register("dup")
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate payloadId registration")
		}
	}()
	r.Register("dup")
}

func TestLen(t *testing.T) {
	r := New()
	if r.Len() != 0 {
		t.Fatalf("got %d, want 0", r.Len())
	}
	r.Register("a")
	r.Register("b")
	if r.Len() != 2 {
		t.Fatalf("got %d, want 2", r.Len())
	}
	r.Resolve("a", nil)
	if r.Len() != 1 {
		t.Fatalf("got %d, want 1", r.Len())
	}
}
