// Package hamlaunch holds the shared vocabulary used by the process
// supervisor and the surfaces that display its output.
package hamlaunch

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound occurs when the selected binary does not exist.
	ErrNotFound = errors.New("binary not found")

	// ErrPermission occurs when the selected binary exists but can not be executed.
	ErrPermission = errors.New("binary is not executable")

	// ErrLaunch occurs when the OS fails to spawn the binary.
	ErrLaunch = errors.New("unable to launch process")

	// ErrAlreadyRunning occurs when a new process can not be started
	// because one is already active.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrNoSelection occurs when Start is called without a binary.
	ErrNoSelection = errors.New("no binary selected")

	// ErrStreamRead describes a failure reading process output.
	ErrStreamRead = errors.New("error reading output")

	// ErrTimedOut is returned when a wait exceeds its deadline.
	ErrTimedOut = errors.New("timed out waiting for process")

	// ErrNoProcess occurs when no process exists to take an action on.
	ErrNoProcess = errors.New("no process running")

	// ErrClosed occurs when the supervisor has been shut down.
	ErrClosed = errors.New("supervisor is shut down")

	// ErrShutdownDeclined is returned when the caller declines to stop
	// a running process during shutdown.
	ErrShutdownDeclined = errors.New("shutdown declined")
)

// Data is anything that is emitted towards a display.
type Data json.Marshaler

// ConsoleData is Data that can appear in console output.
type ConsoleData interface {
	Data
	String() string
}

// Sink is a display that accepts ordered chunks of text.
type Sink interface {
	// Append adds text, which may hold several newline-delimited lines.
	Append(text string)

	// Clear drops everything displayed so far.
	Clear()
}

// Status is a snapshot of the supervisor, delivered on every state change.
type Status struct {
	State    State     `json:"status"`
	Binary   string    `json:"binary,omitempty"`
	PID      int       `json:"pid,omitempty"`
	RunID    string    `json:"run_id,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Forced   bool      `json:"forced,omitempty"`
	Time     time.Time `json:"time"`
}

// PollResult reports what a single poll cycle applied.
type PollResult struct {
	// Lines is the number of line events applied to the display.
	Lines int

	// Exited is true when the process ended on its own during this cycle.
	Exited bool

	// ExitCode is meaningful only when Exited is true.
	ExitCode int
}

// Launcher starts, stops and drains a single supervised binary.
type Launcher interface {

	// Start launches the named binary. Fails if a process is already active.
	Start(binary string) error

	// Stop terminates the running process, forcing it if it does not exit in time.
	Stop() error

	// Poll drains pending output into the display without blocking.
	Poll() PollResult

	// Clear empties the retained output.
	Clear()

	// Running returns true if the underlying process is active.
	Running() bool

	// Status returns the current state snapshot.
	Status() Status

	// Lines returns the retained output, oldest first.
	Lines() []string
}
