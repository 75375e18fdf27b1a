package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/ivan3bx/hamlaunch"
	"github.com/ivan3bx/hamlaunch/supervisor"
)

var allStates = []hamlaunch.State{
	hamlaunch.Idle,
	hamlaunch.Starting,
	hamlaunch.Running,
	hamlaunch.Stopping,
	hamlaunch.Exited,
}

// statusReporter forwards every state change to a writer (usually the
// websocket clients) and to the log.
type statusReporter struct {
	notifier *supervisor.StatusNotifier
	writer   io.Writer
}

func newStatusReporter(n *supervisor.StatusNotifier, w io.Writer) *statusReporter {
	return &statusReporter{notifier: n, writer: w}
}

// Report blocks until ctx is done.
func (r *statusReporter) Report(ctx context.Context) {
	ch := r.notifier.Register(allStates...)
	defer r.notifier.Unregister(ch)

	for {
		select {
		case <-ctx.Done():
			log.Debug("reporter closed")
			return
		case st := <-ch:
			r.report(st)
		}
	}
}

func (r *statusReporter) report(st hamlaunch.Status) {
	entry := log.WithFields(log.Fields{
		"action": "statusReporter.report()",
		"status": st.State,
		"binary": st.Binary,
	})

	if st.ExitCode != nil {
		entry = entry.WithField("code", *st.ExitCode)
	}

	entry.Info("status changed")

	data, err := json.Marshal(st)

	if err != nil {
		entry.WithError(err).Error("unable to encode status")
		return
	}

	r.writer.Write(data)
}

var _ hamlaunch.Sink = &textSink{}

// textSink writes displayed output to a plain stream, such as the
// terminal or the console log file. Clear is ignored; what was written stays.
type textSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *textSink) Append(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, text); err != nil {
		log.WithError(err).Warn("unable to write console output")
	}
}

func (s *textSink) Clear() {}

// consoleLog is a textSink backed by a file opened for append.
type consoleLog struct {
	textSink
	file *os.File
}

func openConsoleLog(path string) (*consoleLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)

	if err != nil {
		return nil, fmt.Errorf("open console log: %w", err)
	}

	log.WithField("path", path).Debug("console log opened")
	return &consoleLog{textSink: textSink{w: file}, file: file}, nil
}

func (l *consoleLog) Close() error {
	return l.file.Close()
}
