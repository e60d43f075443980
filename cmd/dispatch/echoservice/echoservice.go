// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package main builds a ServiceInitializer plugin consumed by the
dispatch example driver's -serviceInitializerPath flag:

	% go build -buildmode=plugin -o echo.so ./cmd/dispatch/echoservice
	% dispatch -workerPath ./worker -serviceInitializerPath ./echo.so

It registers a single "Echo" service with one method, Echo, which
returns its argument unchanged.
*/
package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/shahadul-17/dispatcher/workerloop"
)

type echoService struct{}

func (echoService) Echo(x string) string { return x }

type initializer struct{}

func (initializer) Initialize(_ context.Context, provider workerloop.ServiceProvider, logger *zap.Logger) error {
	logger.Info("registering Echo service")
	provider.(*workerloop.MapServiceProvider).Register("Echo", echoService{})
	return nil
}

// NewServiceInitializer is the default export PluginLoader looks up.
func NewServiceInitializer() workerloop.ServiceInitializer {
	return initializer{}
}
