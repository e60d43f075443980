// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Dispatch is a small example driver that starts a dispatcher.Dispatcher
against a plugin-supplied demo service and issues a handful of calls
against it, printing each result. It is a thin, runnable demonstration
of the core package, not part of the core itself.

	% go build -o worker ./cmd/worker
	% go build -buildmode=plugin -o echo.so ./cmd/dispatch/echoservice
	% dispatch -workerPath ./worker -serviceInitializerPath ./echo.so -n 4

Exit code is 0 on success, non-zero if any worker failed to spawn or
initialize, or if any dispatched call returned an error.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"

	"github.com/shahadul-17/dispatcher"
)

func main() {
	var (
		workerPath      = flag.String("workerPath", "", "path to the compiled cmd/worker binary to spawn for each process")
		initializerPath = flag.String("serviceInitializerPath", "", "path to the compiled ServiceInitializer plugin")
		className       = flag.String("serviceInitializerClassName", "", "exported symbol name within the plugin, if not the default")
		processCount    = flag.Int("n", 2, "number of worker processes to start")
		calls           = flag.Int("calls", 4, "number of demo Echo.Echo calls to dispatch concurrently")
	)
	flag.Parse()

	if *workerPath == "" {
		log.Fatal("dispatch: -workerPath is required")
	}
	if *initializerPath == "" {
		log.Fatal("dispatch: -serviceInitializerPath is required")
	}

	opts := []dispatcher.Option{
		dispatcher.ProcessCount(*processCount),
		dispatcher.Command(*workerPath),
		dispatcher.ServiceInitializerPath(*initializerPath),
	}
	if *className != "" {
		opts = append(opts, dispatcher.ServiceInitializerClassName(*className))
	}

	d, err := dispatcher.New(opts...)
	if err != nil {
		log.Error.Printf("dispatch: configuring dispatcher: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		log.Error.Printf("dispatch: starting workers: %v", err)
		os.Exit(1)
	}
	defer d.Stop()

	log.Printf("dispatching %d Echo.Echo calls across %d workers", *calls, *processCount)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *calls; i++ {
		i := i
		g.Go(func() error {
			result, err := d.Get("Echo", "").Call(ctx, "Echo", fmt.Sprintf("call-%d", i))
			if err != nil {
				return err
			}
			log.Printf("call-%d => %v", i, result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error.Printf("dispatch: %v", err)
		os.Exit(1)
	}
}
