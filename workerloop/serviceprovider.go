// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package workerloop

import (
	"context"

	"go.uber.org/zap"
)

// ServiceProvider maps a service name (plus an opaque, pass-through scope
// name) to a concrete, invocable Go value. Populating it is an external
// collaborator's responsibility, supplied via a ServiceInitializer;
// workerloop only consumes the interface.
type ServiceProvider interface {
	// GetByName returns the service registered under name within scope
	// (scope may be empty). ok is false if nothing is registered there.
	GetByName(name, scope string) (service any, ok bool)
}

// ServiceInitializer is implemented by the user-supplied module named by
// Config.ServiceInitializerPath. Initialize populates provider with
// whatever services this worker process should expose; it is called
// lazily, on the first Dispatch request, and again on later requests
// only while earlier calls have failed. Once it returns nil it is not
// called again in that worker process.
//
// logger is the same forwarding logger the worker loop uses internally:
// its entries travel to the parent as Log payloads over the framed wire
// channel rather than to stdout. Service code must log through it (or
// through a derived *zap.Logger) instead of writing to os.Stdout or
// os.Stderr directly -- stdout is the worker's framed response channel,
// and a raw write to it corrupts the wire protocol.
type ServiceInitializer interface {
	Initialize(ctx context.Context, provider ServiceProvider, logger *zap.Logger) error
}

// MapServiceProvider is a minimal, in-memory ServiceProvider, useful for
// tests and the example CLI driver. Production deployments are expected
// to supply their own ServiceProvider implementation (e.g. backed by a
// DI container) via a ServiceInitializer.
type MapServiceProvider struct {
	services map[string]any
}

// NewMapServiceProvider returns an empty MapServiceProvider.
func NewMapServiceProvider() *MapServiceProvider {
	return &MapServiceProvider{services: make(map[string]any)}
}

// Register adds service under name, ignoring scope (MapServiceProvider
// does not implement scoping; scope is treated as part of the
// dispatcher's opaque passthrough contract).
func (p *MapServiceProvider) Register(name string, service any) {
	p.services[name] = service
}

// GetByName implements ServiceProvider.
func (p *MapServiceProvider) GetByName(name, _ string) (any, bool) {
	s, ok := p.services[name]
	return s, ok
}
