// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package logprefix tags every line of a worker's forwarded log output
// with the process that produced it before the line reaches a
// broadcaster or terminal.
package logprefix

import (
	"bytes"
	"fmt"
	"io"
)

var newline = []byte{'\n'}

// Writer is an io.Writer that tags every line written to it with the
// process ID it was constructed with, rather than an arbitrary
// caller-supplied prefix: the tag is always "[Process N] ", computed
// from the ID itself, so callers never have to agree on a format string.
type Writer struct {
	w          io.Writer
	processID  int
	needPrefix bool
}

// New returns a Writer that copies writes to w, tagging each line with
// processID.
func New(w io.Writer, processID int) *Writer {
	return &Writer{w: w, processID: processID, needPrefix: true}
}

func (w *Writer) tag() string { return fmt.Sprintf("[Process %d] ", w.processID) }

// Write implements io.Writer, inserting this writer's process tag at the
// start of every line it forwards.
func (w *Writer) Write(p []byte) (n int, err error) {
	if w.needPrefix {
		if _, err := io.WriteString(w.w, w.tag()); err != nil {
			return 0, err
		}
		w.needPrefix = false
	}
	for {
		i := bytes.Index(p, newline)
		switch i {
		case len(p) - 1:
			w.needPrefix = true
			fallthrough
		case -1:
			m, err := w.w.Write(p)
			return n + m, err
		default:
			m, err := w.w.Write(p[:i+1])
			n += m
			if err != nil {
				return n, err
			}
			if _, err := io.WriteString(w.w, w.tag()); err != nil {
				return n, err
			}
			p = p[i+1:]
		}
	}
}
