package pendingqueue

import (
	"testing"

	"github.com/shahadul-17/dispatcher/wire"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(0)
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(&wire.DispatchRequest{PayloadID: string(rune('a' + i))}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		req, ok := q.Dequeue()
		if !ok {
			t.Fatalf("expected item %d", i)
		}
		if want := string(rune('a' + i)); req.PayloadID != want {
			t.Errorf("got %q, want %q", req.PayloadID, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("expected empty queue")
	}
}

func TestEnqueueFullReturnsErrFull(t *testing.T) {
	q := New(2)
	if err := q.Enqueue(&wire.DispatchRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&wire.DispatchRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&wire.DispatchRequest{}); err == nil {
		t.Fatal("expected ErrFull")
	}
}

func TestRequeuePutsItemAtHead(t *testing.T) {
	q := New(0)
	first := &wire.DispatchRequest{PayloadID: "first"}
	second := &wire.DispatchRequest{PayloadID: "second"}
	if err := q.Enqueue(first); err != nil {
		t.Fatal(err)
	}
	q.Requeue(second)
	req, ok := q.Dequeue()
	if !ok || req.PayloadID != "second" {
		t.Fatalf("expected %q at head, got %+v", "second", req)
	}
	req, ok = q.Dequeue()
	if !ok || req.PayloadID != "first" {
		t.Fatalf("expected %q next, got %+v", "first", req)
	}
}

func TestLen(t *testing.T) {
	q := New(0)
	if q.Len() != 0 {
		t.Errorf("got %d, want 0", q.Len())
	}
	_ = q.Enqueue(&wire.DispatchRequest{})
	if q.Len() != 1 {
		t.Errorf("got %d, want 1", q.Len())
	}
}
