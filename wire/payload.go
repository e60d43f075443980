// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/json"
	"fmt"
)

// Payload is the sum type for everything that crosses the parent/worker
// boundary. Its concrete type is determined by Flag, which lets Go's type
// system (rather than a single polymorphic "result" field) enforce that a
// payload's shape agrees with its purpose, per the tagged-variant design
// called for by the IPC schema.
type Payload interface {
	// Flag identifies which concrete payload type this is.
	Flag() Flag
	// Proc returns the index of the worker that produced or is targeted
	// by this payload.
	Proc() int
}

// DispatchRequest asks a worker to invoke serviceName.methodName (within
// an optional scope) with the given arguments. Sent parent -> worker.
type DispatchRequest struct {
	PayloadID        string
	ProcessID        int
	ServiceName      string
	ServiceScopeName string
	MethodName       string
	MethodArguments  []any
}

func (r *DispatchRequest) Flag() Flag { return Dispatch }
func (r *DispatchRequest) Proc() int  { return r.ProcessID }

// DispatchResponse carries a successful method return value back to the
// parent. Sent worker -> parent; PayloadID matches the originating
// DispatchRequest.
type DispatchResponse struct {
	PayloadID string
	ProcessID int
	Result    any
}

func (r *DispatchResponse) Flag() Flag { return Dispatch }
func (r *DispatchResponse) Proc() int  { return r.ProcessID }

// ErrorResponse reports that a request failed, or (when PayloadID is
// empty) an out-of-band error that is not tied to any specific request --
// such payloads are logged and dropped by the dispatcher rather than
// delivered to a waiter.
type ErrorResponse struct {
	PayloadID string
	ProcessID int
	Message   string
	Stack     string
}

func (r *ErrorResponse) Flag() Flag { return Error }
func (r *ErrorResponse) Proc() int  { return r.ProcessID }

// LogMessage carries a worker's redirected log output so it can be
// printed by the parent with a "[Process N]" prefix without interleaving
// raw bytes into the framed response channel.
type LogMessage struct {
	ProcessID  int
	Level      string
	Parameters []any
}

func (r *LogMessage) Flag() Flag { return Log }
func (r *LogMessage) Proc() int  { return r.ProcessID }

// wireShape is the flat JSON shape every Payload is encoded to and
// decoded from, matching the single IpcPayload record described by the
// wire contract.
type wireShape struct {
	FlagValue        Flag   `json:"flag"`
	PayloadID        string `json:"payloadId,omitempty"`
	ProcessID        int    `json:"processId"`
	ServiceName      string `json:"serviceName,omitempty"`
	ServiceScopeName string `json:"serviceScopeName,omitempty"`
	MethodName       string `json:"methodName,omitempty"`
	MethodArguments  []any  `json:"methodArguments,omitempty"`
	Result           any    `json:"result,omitempty"`
}

// errorResult and logResult are the two shapes the "result" field can
// take when FlagValue is Error or Log, respectively.
type errorResult struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

type logResult struct {
	LogLevel      string `json:"logLevel"`
	LogParameters []any  `json:"logParameters,omitempty"`
}

// Marshal encodes p into its canonical flat wire shape.
func Marshal(p Payload) ([]byte, error) {
	var w wireShape
	switch v := p.(type) {
	case *DispatchRequest:
		w = wireShape{
			FlagValue:        Dispatch,
			PayloadID:        v.PayloadID,
			ProcessID:        v.ProcessID,
			ServiceName:      v.ServiceName,
			ServiceScopeName: v.ServiceScopeName,
			MethodName:       v.MethodName,
			MethodArguments:  v.MethodArguments,
		}
	case *DispatchResponse:
		w = wireShape{
			FlagValue: Dispatch,
			PayloadID: v.PayloadID,
			ProcessID: v.ProcessID,
			Result:    v.Result,
		}
	case *ErrorResponse:
		w = wireShape{
			FlagValue: Error,
			PayloadID: v.PayloadID,
			ProcessID: v.ProcessID,
			Result:    errorResult{Message: v.Message, Stack: v.Stack},
		}
	case *LogMessage:
		w = wireShape{
			FlagValue: Log,
			ProcessID: v.ProcessID,
			Result:    logResult{LogLevel: v.Level, LogParameters: v.Parameters},
		}
	default:
		return nil, fmt.Errorf("wire: unsupported payload type %T", p)
	}
	return json.Marshal(w)
}

// Unmarshal decodes raw into the concrete Payload type indicated by its
// "flag" field. An unknown or non-positive flag returns (nil, nil): per
// the wire contract, such frames are silently dropped rather than treated
// as an error.
func Unmarshal(raw []byte) (Payload, error) {
	var w wireShape
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if !w.FlagValue.Valid() {
		return nil, nil
	}
	switch w.FlagValue {
	case Dispatch:
		if w.MethodName != "" || w.ServiceName != "" {
			return &DispatchRequest{
				PayloadID:        w.PayloadID,
				ProcessID:        w.ProcessID,
				ServiceName:      w.ServiceName,
				ServiceScopeName: w.ServiceScopeName,
				MethodName:       w.MethodName,
				MethodArguments:  w.MethodArguments,
			}, nil
		}
		return &DispatchResponse{
			PayloadID: w.PayloadID,
			ProcessID: w.ProcessID,
			Result:    w.Result,
		}, nil
	case Error:
		er := decodeErrorResult(w.Result)
		return &ErrorResponse{
			PayloadID: w.PayloadID,
			ProcessID: w.ProcessID,
			Message:   er.Message,
			Stack:     er.Stack,
		}, nil
	case Log:
		lr := decodeLogResult(w.Result)
		return &LogMessage{
			ProcessID:  w.ProcessID,
			Level:      lr.LogLevel,
			Parameters: lr.LogParameters,
		}, nil
	default:
		return nil, nil
	}
}

func decodeErrorResult(result any) errorResult {
	m, ok := result.(map[string]any)
	if !ok {
		return errorResult{}
	}
	er := errorResult{}
	if v, ok := m["message"].(string); ok {
		er.Message = v
	}
	if v, ok := m["stack"].(string); ok {
		er.Stack = v
	}
	return er
}

func decodeLogResult(result any) logResult {
	m, ok := result.(map[string]any)
	if !ok {
		return logResult{}
	}
	lr := logResult{}
	if v, ok := m["logLevel"].(string); ok {
		lr.LogLevel = v
	}
	if v, ok := m["logParameters"].([]any); ok {
		lr.LogParameters = v
	}
	return lr
}
