// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"fmt"
	"net/http"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shahadul-17/dispatcher/worker"
)

var startTime = time.Now()

var statusTemplate = template.Must(template.New("status").Parse(
	"process\tstate\ttaskCount\n" +
		"{{range .Workers}}{{.ProcessID}}\t{{.State}}\t{{.TaskCount}}\n{{end}}" +
		"\nuptime: {{.Uptime}}\nqueued: {{.QueueDepth}}\ninflight waiters: {{.WaiterCount}}\n"))

type workerStatus struct {
	ProcessID int
	State     worker.State
	TaskCount int32
}

// StatusHandler renders a plain-text table of every worker's state and
// task count: per-worker task count, pending-queue depth, and the
// number of requests currently awaiting a response.
func (d *Dispatcher) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		workers := make([]workerStatus, len(d.workers))
		for i, wh := range d.workers {
			workers[i] = workerStatus{ProcessID: wh.ProcessID(), State: wh.State(), TaskCount: wh.TaskCount()}
		}
		var tw tabwriter.Writer
		tw.Init(w, 4, 4, 1, ' ', 0)
		defer tw.Flush()
		err := statusTemplate.Execute(&tw, map[string]any{
			"Workers":     workers,
			"Uptime":      time.Since(startTime),
			"QueueDepth":  d.pending.Len(),
			"WaiterCount": d.correlation.Len(),
		})
		if err != nil {
			http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
		}
	})
}

// DebugRouter returns a chi router exposing /status and /metrics for
// this dispatcher, meant to be mounted under a path such as
// "/debug/dispatcher" on the caller's own HTTP server.
func (d *Dispatcher) DebugRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", d.StatusHandler().ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(promRegistry(d), promhttp.HandlerOpts{}))
	return r
}
