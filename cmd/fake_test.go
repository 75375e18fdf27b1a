package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ivan3bx/hamlaunch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ hamlaunch.Launcher = &fakeLauncher{}

// fakeLauncher records calls and returns canned results.
type fakeLauncher struct {
	sync.Mutex

	startErr error
	stopErr  error

	started []string
	stopped int
	cleared int
	polls   int

	// Poll reports an exit with exitCode once polls reaches exitAfter.
	exitAfter int
	exitCode  int

	status hamlaunch.Status
	lines  []string
}

func (f *fakeLauncher) Start(binary string) error {
	f.Lock()
	defer f.Unlock()

	if f.startErr != nil {
		return f.startErr
	}

	f.started = append(f.started, binary)
	f.status = hamlaunch.Status{State: hamlaunch.Running, Binary: binary, PID: 42}
	return nil
}

func (f *fakeLauncher) Stop() error {
	f.Lock()
	defer f.Unlock()

	if f.stopErr != nil {
		return f.stopErr
	}

	f.stopped++
	f.status = hamlaunch.Status{State: hamlaunch.Idle}
	return nil
}

func (f *fakeLauncher) Poll() hamlaunch.PollResult {
	f.Lock()
	defer f.Unlock()

	f.polls++

	if f.exitAfter > 0 && f.polls == f.exitAfter {
		return hamlaunch.PollResult{Exited: true, ExitCode: f.exitCode}
	}

	return hamlaunch.PollResult{}
}

func (f *fakeLauncher) Clear() {
	f.Lock()
	defer f.Unlock()
	f.cleared++
	f.lines = nil
}

func (f *fakeLauncher) Running() bool {
	return f.Status().State == hamlaunch.Running
}

func (f *fakeLauncher) Status() hamlaunch.Status {
	f.Lock()
	defer f.Unlock()
	return f.status
}

func (f *fakeLauncher) Lines() []string {
	f.Lock()
	defer f.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeLauncher) pollCount() int {
	f.Lock()
	defer f.Unlock()
	return f.polls
}

// readyLauncher is a fakeLauncher that can report readiness.
type readyLauncher struct {
	fakeLauncher
	readyErr error
	addr     string
}

func (r *readyLauncher) WaitReady(ctx context.Context, addr string) error {
	r.addr = addr
	return r.readyErr
}

func writeScript(t *testing.T, dir, name, body string, mode os.FileMode) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), mode))
	require.NoError(t, os.Chmod(path, mode))
	return path
}

func assertAsync(t *testing.T, testFunc func() bool, msgs ...interface{}) {
	const (
		timeout = time.Second * 5
		tick    = time.Millisecond * 5
	)
	assert.Eventually(t, testFunc, timeout, tick, msgs...)
}
