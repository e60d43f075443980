// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatchertest

import (
	"io"
	"math/rand"
)

// FaultyReader wraps an io.Reader and randomly truncates reads. It is
// used to exercise the decoder's "advance past the delimiter, keep
// parsing" recovery policy for malformed frames under a noisy
// transport.
type FaultyReader struct {
	r    io.Reader
	rand *rand.Rand
}

// NewFaultyReader wraps r with a deterministic pseudo-random fault
// schedule driven by seed, so a failing test run is reproducible.
func NewFaultyReader(r io.Reader, seed int64) *FaultyReader {
	return &FaultyReader{r: r, rand: rand.New(rand.NewSource(seed))}
}

// Read implements io.Reader, occasionally truncating the underlying
// read to simulate a corrupted or split frame arriving on the wire.
func (f *FaultyReader) Read(buf []byte) (int, error) {
	n, err := f.r.Read(buf)
	if n > 0 && f.rand.Float32() < 0.1 {
		n = int(float64(n) * f.rand.Float64())
	}
	return n, err
}
