// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package workerloop

import (
	"context"
	"plugin"
	"sync"

	"go.uber.org/zap"

	"github.com/grailbio/base/errors"
)

// defaultInitializerSymbol is looked up in the plugin when
// Config.ServiceInitializerClassName is unset.
const defaultInitializerSymbol = "NewServiceInitializer"

// Loader resolves a Config's service-initializer module into a
// ServiceInitializer instance. It is a function type so tests can supply
// a fake loader without building a real Go plugin.
type Loader func(cfg Config) (ServiceInitializer, error)

// PluginLoader loads the module at cfg.ServiceInitializerPath as a Go
// plugin and invokes the exported symbol named by
// cfg.ServiceInitializerClassName, or defaultInitializerSymbol if unset.
// The symbol must be either a ServiceInitializer or a func()
// ServiceInitializer.
func PluginLoader(cfg Config) (ServiceInitializer, error) {
	p, err := plugin.Open(cfg.ServiceInitializerPath)
	if err != nil {
		return nil, errors.E(errors.Invalid, "workerloop: loading service initializer plugin", err)
	}
	symbolName := cfg.ServiceInitializerClassName
	if symbolName == "" {
		symbolName = defaultInitializerSymbol
	}
	sym, err := p.Lookup(symbolName)
	if err != nil {
		return nil, errors.E(errors.Invalid, "workerloop: no such export "+symbolName, err)
	}
	switch v := sym.(type) {
	case ServiceInitializer:
		return v, nil
	case func() ServiceInitializer:
		return v(), nil
	default:
		return nil, errors.E(errors.Invalid, "workerloop: export "+symbolName+" is not a ServiceInitializer")
	}
}

// initState tracks the lazy, idempotent, retry-on-failure initialization
// required by the worker-side loop: Initialize runs at most once per
// worker process, but a failed attempt resets the "done" flag so a later
// request can retry.
type initState struct {
	mu       sync.Mutex
	done     bool
	load     Loader
	cfg      Config
	provider ServiceProvider
	logger   *zap.Logger
}

func newInitState(cfg Config, load Loader, provider ServiceProvider, logger *zap.Logger) *initState {
	return &initState{cfg: cfg, load: load, provider: provider, logger: logger}
}

// Ensure runs the service initializer if it has not already succeeded.
func (s *initState) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	init, err := s.load(s.cfg)
	if err != nil {
		return errors.E(errors.Invalid, "workerloop: initializer load failed", err)
	}
	if err := init.Initialize(ctx, s.provider, s.logger); err != nil {
		// Leave done=false so a later request can retry initialization.
		return errors.E(errors.Invalid, "workerloop: initializer failed", err)
	}
	s.done = true
	return nil
}
