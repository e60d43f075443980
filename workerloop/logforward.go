// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package workerloop

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a *zap.Logger whose every entry is handed to emit as
// a (level, parameters) pair, rather than written to stdout: stdout is
// reserved for framed response payloads, so a worker's diagnostic output
// must travel over the same framed channel as a Log-flagged payload.
// This is handed to the user's ServiceInitializer so service code gets a
// real structured logger instead of writing to os.Stdout directly.
func NewLogger(emit func(level string, params []any)) *zap.Logger {
	return zap.New(&forwardingCore{enabler: zapcore.DebugLevel, emit: emit})
}

type forwardingCore struct {
	enabler zapcore.LevelEnabler
	emit    func(level string, params []any)
	fields  []zapcore.Field
}

func (c *forwardingCore) Enabled(lvl zapcore.Level) bool { return c.enabler.Enabled(lvl) }

func (c *forwardingCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &forwardingCore{enabler: c.enabler, emit: c.emit, fields: merged}
}

func (c *forwardingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *forwardingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	params := []any{ent.Message}
	if len(enc.Fields) > 0 {
		params = append(params, enc.Fields)
	}
	c.emit(ent.Level.String(), params)
	return nil
}

func (c *forwardingCore) Sync() error { return nil }
