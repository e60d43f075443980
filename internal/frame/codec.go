// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package frame implements the delimiter-based framing used to carry
// wire.Payload values over a byte stream (a child process's stdin or
// stdout). The underlying transport offers no message boundaries of its
// own, so every frame is a JSON document followed by a sentinel
// delimiter and a newline; a multi-character sentinel is used, rather
// than a single byte, because it is exceedingly unlikely to appear inside
// a serialized payload.
package frame

import (
	"bytes"

	"github.com/grailbio/base/errors"
)

// Delimiter separates consecutive frames on the wire. It is chosen to be
// unlikely to collide with any JSON-serialized payload content.
const Delimiter = "<--- END OF DATA --->"

var delimiterBytes = []byte(Delimiter + "\n")

// Encode appends the framing delimiter and a trailing newline to a
// already-serialized payload, producing the bytes that should be written
// to the wire.
func Encode(serialized []byte) []byte {
	out := make([]byte, 0, len(serialized)+len(delimiterBytes))
	out = append(out, serialized...)
	out = append(out, delimiterBytes...)
	return out
}

// Decoder accumulates bytes read from a stream and splits them into
// individual, still-serialized frames. It never blocks and never
// discards a partial trailing frame: bytes that do not yet contain a
// full delimiter are retained across calls to Feed, so it tolerates
// arbitrary chunking of the underlying stream.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly-read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(chunk []byte) {
	d.buf.Write(chunk)
}

// Next returns the next fully-delimited frame's serialized contents, if
// one is available. ok is false when the buffer holds only a partial
// frame; this is not an error, callers should simply Feed more bytes and
// retry. On a malformed frame (a delimiter found, but the content before
// it is not valid on decode by the caller), Next still advances past the
// delimiter so that the stream does not desynchronize; it is the
// responsibility of the payload decoder (wire.Unmarshal) to surface a
// FrameDecode-kind error for content it cannot parse.
func (d *Decoder) Next() (frame []byte, ok bool) {
	data := d.buf.Bytes()
	idx := bytes.Index(data, delimiterBytes)
	if idx < 0 {
		return nil, false
	}
	frame = make([]byte, idx)
	copy(frame, data[:idx])
	d.buf.Next(idx + len(delimiterBytes))
	return frame, true
}

// Drain repeatedly calls Next, invoking fn for every complete frame
// currently buffered. It is a convenience for the common "parse
// everything available right now" loop used by both worker.Endpoint and
// the worker-side loop.
func (d *Decoder) Drain(fn func(frame []byte)) {
	for {
		f, ok := d.Next()
		if !ok {
			return
		}
		fn(f)
	}
}

// ErrMalformedFrame wraps a frame-decode failure with the FrameDecode
// error kind used throughout the dispatcher package.
func ErrMalformedFrame(cause error) error {
	return errors.E(errors.Invalid, "frame: malformed frame", cause)
}
