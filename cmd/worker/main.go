// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Worker is the child-process binary the dispatcher spawns under
dispatcher.Options.Command: it speaks the framed stdin/stdout protocol
defined by package wire, dispatching each request to a service resolved
through a ServiceInitializer plugin loaded at --serviceInitializerPath.

It is not meant to be run directly by a human; dispatcher.Start builds
its argv automatically. It is, however, useful to invoke by hand while
developing a ServiceInitializer plugin, piping hand-crafted frames in
over stdin.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/log"

	"github.com/shahadul-17/dispatcher/workerloop"
)

func main() {
	cfg, err := workerloop.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider := workerloop.NewMapServiceProvider()
	loop := workerloop.New(cfg, provider, workerloop.PluginLoader, os.Stdin, os.Stdout)

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
