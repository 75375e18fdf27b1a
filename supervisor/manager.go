// Package supervisor runs one external binary at a time, captures its
// merged output on a background reader and hands that output to displays
// through a poll cycle driven by the caller.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/ivan3bx/hamlaunch"
	"github.com/oklog/ulid/v2"
)

var _ hamlaunch.Launcher = &Supervisor{}

const (
	// DefaultStopTimeout is how long Stop waits for a clean exit before killing.
	DefaultStopTimeout = time.Second * 5

	// LaunchFlag is passed to every binary.
	LaunchFlag = "-o"

	readyInterval = time.Millisecond * 250
)

// Config configures a Supervisor. Zero values select defaults.
type Config struct {
	Catalog Catalog

	// Args are passed to the binary. Defaults to LaunchFlag alone.
	Args []string

	// WorkingDir is the directory the binary runs in. Defaults to the
	// current working directory at Start.
	WorkingDir string

	// StopTimeout bounds the graceful part of Stop.
	StopTimeout time.Duration

	// MaxLines caps the retained output.
	MaxLines int

	// Sinks receive everything appended to the output buffer.
	Sinks []hamlaunch.Sink
}

// run is one process lifetime.
type run struct {
	id       string
	binary   string
	handle   *Handle
	stopping bool

	drained  chan struct{} // closed once the reader has finished
	stopDone chan struct{} // closed once Stop has finished with this run
}

// Supervisor manages the lifecycle of a single supervised binary.
type Supervisor struct {
	catalog     Catalog
	args        []string
	workingDir  string
	stopTimeout time.Duration

	events *EventChannel
	buffer *OutputBuffer

	// observers of state transitions
	notifier StatusNotifier

	// serializes delivery to sinks; taken before mu, never while holding it
	sinkMu sync.Mutex

	// guards everything below
	mu      sync.Mutex
	state   hamlaunch.State
	current *run
	status  hamlaunch.Status
	sinks   []hamlaunch.Sink
	closed  bool
}

// New returns an idle Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.Args == nil {
		cfg.Args = []string{LaunchFlag}
	}

	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	return &Supervisor{
		catalog:     cfg.Catalog,
		args:        cfg.Args,
		workingDir:  cfg.WorkingDir,
		stopTimeout: cfg.StopTimeout,
		events:      NewEventChannel(),
		buffer:      NewOutputBuffer(cfg.MaxLines),
		sinks:       append([]hamlaunch.Sink(nil), cfg.Sinks...),
		status:      hamlaunch.Status{State: hamlaunch.Idle, Time: time.Now()},
	}
}

// AddSink registers another display for appended output.
func (s *Supervisor) AddSink(sink hamlaunch.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Start launches the named binary from the catalog. It fails if a process
// is already active; a failed Start leaves the supervisor Idle.
func (s *Supervisor) Start(binary string) error {
	log := log.WithFields(log.Fields{"action": "Supervisor.Start()", "binary": binary})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return hamlaunch.ErrClosed
	}

	if s.state != hamlaunch.Idle {
		return fmt.Errorf("%s is %v: %w", s.current.binary, s.state, hamlaunch.ErrAlreadyRunning)
	}

	binary = strings.TrimSpace(binary)

	path, err := s.catalog.Resolve(binary)

	if err != nil {
		log.WithError(err).Warn("binary rejected")
		return err
	}

	dir := s.workingDir

	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return fmt.Errorf("%w: %w", hamlaunch.ErrLaunch, err)
		}
	}

	s.state = hamlaunch.Starting

	h, err := StartProcess(path, s.args, dir)

	if err != nil {
		s.state = hamlaunch.Idle
		return err
	}

	r := &run{
		id:       ulid.Make().String(),
		binary:   binary,
		handle:   h,
		drained:  make(chan struct{}),
		stopDone: make(chan struct{}),
	}
	s.current = r

	// queued ahead of the reader so it is always the first line of the run
	s.events.Push(LineEvent{
		RunID: r.id,
		Text:  fmt.Sprintf("=== Started %s with PID %d ===", binary, h.Pid()),
		Time:  time.Now(),
	})

	go func() {
		defer close(r.drained)
		readOutput(h.Output(), h, r.id, s.events)
	}()

	processStarts.WithLabelValues(binary).Inc()
	s.notifier.Notify(s.transition(hamlaunch.Running, r, nil))

	log.WithField("pid", h.Pid()).Info("process started")
	return nil
}

// Stop will terminate the running process, killing it if it does not exit
// within the stop timeout. It blocks until the process is gone and its
// output has been read, and always leaves the supervisor Idle.
func (s *Supervisor) Stop() error {
	log := log.WithField("action", "Supervisor.Stop()")

	s.mu.Lock()

	if s.state != hamlaunch.Running || s.current == nil {
		s.mu.Unlock()
		log.Info("not running")
		return hamlaunch.ErrNoProcess
	}

	r := s.current
	r.stopping = true
	s.notifier.Notify(s.transition(hamlaunch.Stopping, r, nil))

	// released while waiting so the poll cycle keeps draining
	s.mu.Unlock()

	code, forced := stopProcess(r.handle, r.drained, s.stopTimeout)

	// the reader is done, so this follows everything the process wrote
	s.events.Push(LineEvent{
		RunID: r.id,
		Text:  fmt.Sprintf("=== %s stopped ===", r.binary),
		Time:  time.Now(),
	})

	reason := "stopped"
	if forced {
		reason = "killed"
	}
	processExits.WithLabelValues(reason).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(r.stopDone)

	s.current = nil
	s.notifier.Notify(s.transition(hamlaunch.Idle, r, func(st *hamlaunch.Status) {
		st.ExitCode = &code
		st.Forced = forced
	}))

	return nil
}

// Poll drains every event available right now and applies it to the
// output buffer and sinks. An end of stream that no Stop is waiting for
// moves the supervisor through Exited back to Idle, and ends the cycle.
// Poll never blocks on the process or its reader. Sinks are called without
// the supervisor lock, so a slow sink delays only the next Poll or Clear.
func (s *Supervisor) Poll() hamlaunch.PollResult {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	s.mu.Lock()
	result, text, changes := s.drain()
	sinks := append([]hamlaunch.Sink(nil), s.sinks...)
	s.mu.Unlock()

	if text != "" {
		for _, sink := range sinks {
			sink.Append(text)
		}
	}

	for _, st := range changes {
		s.notifier.Notify(st)
	}

	return result
}

// drain pops events into the buffer and returns the text for sinks along
// with any state changes to announce. Callers hold s.mu.
func (s *Supervisor) drain() (hamlaunch.PollResult, string, []hamlaunch.Status) {
	var (
		result  hamlaunch.PollResult
		pending strings.Builder
	)

	for {
		e, ok := s.events.TryPop()

		if !ok {
			s.apply(pending.String())
			return result, pending.String(), nil
		}

		switch e := e.(type) {
		case LineEvent:
			pending.WriteString(e.Text)
			pending.WriteByte('\n')
			result.Lines++

		case EndOfStreamEvent:
			r := s.current

			if r == nil || r.id != e.RunID || r.stopping {
				log.WithFields(log.Fields{"action": "Supervisor.Poll()", "run": e.RunID}).Debug("discarding end of stream")
				continue
			}

			fmt.Fprintf(&pending, "=== Process exited with code %d ===\n", e.ExitCode)
			s.apply(pending.String())
			processExits.WithLabelValues("exited").Inc()

			code := e.ExitCode
			s.current = nil

			changes := []hamlaunch.Status{
				s.transition(hamlaunch.Exited, r, func(st *hamlaunch.Status) { st.ExitCode = &code }),
				s.transition(hamlaunch.Idle, r, func(st *hamlaunch.Status) { st.ExitCode = &code }),
			}

			result.Exited = true
			result.ExitCode = code
			return result, pending.String(), changes
		}
	}
}

// Clear empties the output buffer and every sink.
func (s *Supervisor) Clear() {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	s.mu.Lock()
	s.buffer.Clear()
	sinks := append([]hamlaunch.Sink(nil), s.sinks...)
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Clear()
	}
}

// Shutdown stops any active process and refuses further starts. When a
// process is active, confirm (if not nil) decides whether to go ahead;
// declining returns ErrShutdownDeclined and changes nothing. A Stop already
// in flight is waited for.
func (s *Supervisor) Shutdown(confirm func() bool) error {
	if s.Active() && confirm != nil && !confirm() {
		return hamlaunch.ErrShutdownDeclined
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.Stop()

	if errors.Is(err, hamlaunch.ErrNoProcess) {
		s.mu.Lock()
		r := s.current
		s.mu.Unlock()

		if r != nil && r.stopping {
			<-r.stopDone
		}

		return nil
	}

	return err
}

// WaitReady blocks until addr accepts connections while the current
// process is running. Returns ErrNoProcess if nothing is running or the
// process exits first.
func (s *Supervisor) WaitReady(ctx context.Context, addr string) error {
	s.mu.Lock()
	var h *Handle
	if s.state == hamlaunch.Running && s.current != nil {
		h = s.current.handle
	}
	s.mu.Unlock()

	if h == nil {
		return hamlaunch.ErrNoProcess
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-h.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := checkPort(ctx, addr, readyInterval); err != nil {
		if _, exited := h.Poll(); exited {
			return hamlaunch.ErrNoProcess
		}
		return err
	}

	return nil
}

// CurrentState is the current state of the process being managed.
func (s *Supervisor) CurrentState() hamlaunch.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running returns whether the process is running.
func (s *Supervisor) Running() bool {
	return s.CurrentState() == hamlaunch.Running
}

// Active returns whether a process is held, including while starting or stopping.
func (s *Supervisor) Active() bool {
	return s.CurrentState().Active()
}

// Status returns the snapshot sent with the last transition.
func (s *Supervisor) Status() hamlaunch.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Lines returns the retained output, oldest first.
func (s *Supervisor) Lines() []string {
	return s.buffer.Lines()
}

// Buffer is the retained output.
func (s *Supervisor) Buffer() *OutputBuffer {
	return s.buffer
}

// Notifier is the registry of state observers.
func (s *Supervisor) Notifier() *StatusNotifier {
	return &s.notifier
}

// Catalog is the set of binaries this supervisor can start.
func (s *Supervisor) Catalog() Catalog {
	return s.catalog
}

// transition records a new state and returns the status to announce.
// Callers hold s.mu.
func (s *Supervisor) transition(next hamlaunch.State, r *run, update func(*hamlaunch.Status)) hamlaunch.Status {
	log.WithFields(log.Fields{
		"action": "Supervisor.transition()",
		"state":  fmt.Sprintf("%v->%v", s.state, next),
	}).Info("state transition")

	s.state = next

	st := hamlaunch.Status{State: next, Time: time.Now()}

	if r != nil {
		st.Binary = r.binary
		st.RunID = r.id
		st.PID = r.handle.Pid()
	}

	if update != nil {
		update(&st)
	}

	s.status = st
	supervisorState.Set(float64(next))
	return st
}

// apply appends text to the buffer. Callers hold s.mu.
func (s *Supervisor) apply(text string) {
	if text == "" {
		return
	}

	before := s.buffer.Evicted()
	s.buffer.Append(text)
	linesEvicted.Add(float64(s.buffer.Evicted() - before))
}
