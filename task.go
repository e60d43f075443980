// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

// Task describes one remote method invocation, the argument to
// Dispatch: a service reference resolved dynamically by name, a method
// name, and an ordered argument list.
type Task struct {
	// ServiceName identifies the service, resolved on the worker side
	// by the caller-supplied service provider.
	ServiceName string
	// ServiceScopeName is an opaque string passed through to the
	// worker's service provider unchanged; its semantics are entirely
	// up to that external collaborator.
	ServiceScopeName string
	// MethodName is the method to invoke on the resolved service.
	MethodName string
	// MethodArguments is the ordered, JSON-serialisable argument list.
	MethodArguments []any
}
