package supervisor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/ivan3bx/hamlaunch"
)

var (
	_ hamlaunch.ConsoleData = LineEvent{}
	_ hamlaunch.Data        = EndOfStreamEvent{}
)

// Event is an item travelling from the output reader to the poll cycle.
// It is either a LineEvent or an EndOfStreamEvent.
type Event interface {
	hamlaunch.Data

	// Run is the identifier of the process lifetime that produced the event.
	Run() string

	// Sequence is the arrival order assigned by the EventChannel.
	Sequence() uint64

	withSeq(seq uint64) Event
}

// LineEvent is a single line of captured output.
type LineEvent struct {
	RunID string
	Seq   uint64
	Text  string
	Time  time.Time

	// Err is set on synthetic lines that describe a read failure.
	Err error
}

func (e LineEvent) String() string   { return e.Text }
func (e LineEvent) Run() string      { return e.RunID }
func (e LineEvent) Sequence() uint64 { return e.Seq }

func (e LineEvent) withSeq(seq uint64) Event {
	e.Seq = seq
	return e
}

// MarshalJSON converts this output to valid JSON.
func (e LineEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Output string `json:"output"`
	}{e.Text})
}

// EndOfStreamEvent is the last event of a process lifetime and carries
// its exit code.
type EndOfStreamEvent struct {
	RunID    string
	Seq      uint64
	ExitCode int
}

func (e EndOfStreamEvent) Run() string      { return e.RunID }
func (e EndOfStreamEvent) Sequence() uint64 { return e.Seq }

func (e EndOfStreamEvent) withSeq(seq uint64) Event {
	e.Seq = seq
	return e
}

// MarshalJSON converts this event to valid JSON.
func (e EndOfStreamEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ExitCode int `json:"exit_code"`
	}{e.ExitCode})
}

// waiter yields the exit code of a process, blocking when timeout <= 0.
type waiter interface {
	Wait(timeout time.Duration) (int, error)
}

// mergedOutput points both stdout & stderr of cmd at the write end of a
// single pipe, so lines arrive in the order the process wrote them. The
// caller owns both ends.
func mergedOutput(cmd *exec.Cmd) (r *os.File, w *os.File, err error) {
	if cmd.Stdout != nil {
		return nil, nil, errors.New("exec: Stdout already set")
	}

	if cmd.Stderr != nil {
		return nil, nil, errors.New("exec: Stderr already set")
	}

	if r, w, err = os.Pipe(); err != nil {
		return nil, nil, err
	}

	cmd.Stdout = w
	cmd.Stderr = w

	return r, w, nil
}

// readOutput pushes every line read from r onto events until the stream
// ends. It then closes r, waits for the process and pushes exactly one
// EndOfStreamEvent. Failures only ever surface as events.
func readOutput(r io.ReadCloser, p waiter, runID string, events *EventChannel) {
	log := log.WithFields(log.Fields{"action": "readOutput()", "run": runID})

	defer func() {
		r.Close()

		code, _ := p.Wait(0)
		events.Push(EndOfStreamEvent{RunID: runID, ExitCode: code})
		log.WithField("code", code).Debug("end of stream")
	}()

	br := bufio.NewReader(r)

	for {
		line, err := br.ReadString('\n')

		if len(line) > 0 {
			events.Push(LineEvent{RunID: runID, Text: trimEOL(line), Time: time.Now()})
			linesCaptured.Inc()
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
			return
		default:
			log.WithError(err).Warn("output stream failed")
			streamErrors.Inc()
			events.Push(LineEvent{
				RunID: runID,
				Text:  fmt.Sprintf("[Error reading output: %v]", err),
				Time:  time.Now(),
				Err:   fmt.Errorf("%w: %w", hamlaunch.ErrStreamRead, err),
			})
			return
		}
	}
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
