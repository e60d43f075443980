// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"bytes"
	"io"
	"io/ioutil"
	"math/rand"
	"sync"
	"testing"
)

func tostring(r io.Reader) string {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func TestLogBroadcasterFansOutToEverySubscriber(t *testing.T) {
	b := newLogBroadcaster(0, 1024, nil)
	var b1, b2 bytes.Buffer
	b.Subscribe(&b1)
	b.Subscribe(&b2)
	io.WriteString(b, "hello worker")
	b.Flush()
	if got, want := tostring(&b1), "hello worker"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tostring(&b2), "hello worker"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLogBroadcasterPublishTagsLineWithProcessID(t *testing.T) {
	b := newLogBroadcaster(3, 1024, nil)
	var out bytes.Buffer
	b.Subscribe(&out)
	b.Publish([]any{"hello", "worker"})
	b.Flush()
	if got, want := tostring(&out), "[Process 3] [hello worker]\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLogBroadcasterDropsOverLimitWrites(t *testing.T) {
	b := newLogBroadcaster(0, 1024, nil)
	r, w := io.Pipe()
	b.Subscribe(w)
	rnd := rand.New(rand.NewSource(rand.Int63()))
	in := make([]byte, 1000)
	if _, err := rnd.Read(in); err != nil {
		t.Fatal(err)
	}
	b.Write(in)
	b.Write(in)
	var out []byte
	var readErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		out, readErr = ioutil.ReadAll(r)
		wg.Done()
	}()
	b.Flush()
	w.Close()
	wg.Wait()

	if readErr != nil {
		t.Fatal(readErr)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("buffers differ (in=%d, out=%d)", len(in), len(out))
	}
}

func TestLogBroadcasterReportsDropsThroughOnDrop(t *testing.T) {
	var drops int
	b := newLogBroadcaster(0, 16, func() { drops++ })
	r, w := io.Pipe()
	b.Subscribe(w)

	// Fill the subscriber's backlog without anyone draining it, so the
	// second write has nowhere to go.
	b.Write(make([]byte, 16))
	b.Write(make([]byte, 16))

	if drops == 0 {
		t.Error("expected onDrop to be called for the over-limit write")
	}

	w.Close()
	ioutil.ReadAll(r)
}
