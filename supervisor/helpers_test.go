package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

// writeScript creates a shell script called name in dir.
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

// drain pops events until an EndOfStreamEvent arrives or time runs out.
func drain(t *testing.T, ch *EventChannel) []Event {
	t.Helper()

	var events []Event

	assertAsync(t, func() bool {
		for {
			e, ok := ch.TryPop()
			if !ok {
				return false
			}
			events = append(events, e)
			if _, done := e.(EndOfStreamEvent); done {
				return true
			}
		}
	}, "no end of stream")

	return events
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

// startReading runs readOutput for h the way Start does.
func startReading(h *Handle) (*EventChannel, <-chan struct{}) {
	ch := NewEventChannel()
	drained := make(chan struct{})

	go func() {
		defer close(drained)
		readOutput(h.Output(), h, "run", ch)
	}()

	return ch, drained
}

// childPid parses the pid from a "child <pid>" line.
func childPid(t *testing.T, e Event) int {
	t.Helper()

	line, ok := e.(LineEvent)
	require.True(t, ok, "expected a line, got %v", e)

	var pid int
	_, err := fmt.Sscanf(line.Text, "child %d", &pid)
	require.NoError(t, err)
	return pid
}

// processGone is true once pid no longer exists or is a zombie awaiting
// its new parent.
func processGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}

	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}

	// the state follows the parenthesised command name
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}
