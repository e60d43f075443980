// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEndToEndAcrossRealProcesses builds the real cmd/worker binary and
// the echoservice ServiceInitializer plugin, spawns a Dispatcher against
// them, and dispatches a call through the full stack: framed stdio,
// actual child processes, and plugin-loaded service resolution, rather
// than the in-process dispatchertest.FakeWorker the rest of this
// package's tests use.
func TestEndToEndAcrossRealProcesses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("buildmode=plugin is not supported on windows")
	}
	if testing.Short() {
		t.Skip("skipping build-and-spawn integration test in -short mode")
	}

	dir := t.TempDir()
	workerBin := filepath.Join(dir, "worker")
	pluginPath := filepath.Join(dir, "echo.so")

	build := exec.Command("go", "build", "-o", workerBin, "./cmd/worker")
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("building cmd/worker: %v\n%s", err, out)
	}
	buildPlugin := exec.Command("go", "build", "-buildmode=plugin", "-o", pluginPath, "./cmd/dispatch/echoservice")
	if out, err := buildPlugin.CombinedOutput(); err != nil {
		t.Fatalf("building echoservice plugin: %v\n%s", err, out)
	}

	d, err := New(
		ProcessCount(2),
		Command(workerBin),
		ServiceInitializerPath(pluginPath),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	result, err := d.Get("Echo", "").Call(ctx, "Echo", "hello from a real process")
	require.NoError(t, err)
	require.Equal(t, "hello from a real process", result)
}
