package supervisor

import (
	"errors"
	"time"

	"github.com/apex/log"
	"golang.org/x/sys/unix"
)

// Terminate asks the process group to shut down. It does not wait.
func (h *Handle) Terminate() error {
	return h.signal(unix.SIGTERM)
}

// Kill forcefully ends the process group.
func (h *Handle) Kill() error {
	return h.signal(unix.SIGKILL)
}

// signal reaches the whole group, including children that outlive the
// binary itself. A group with no members left is not an error.
func (h *Handle) signal(sig unix.Signal) error {
	err := unix.Kill(-h.Pid(), sig)

	if errors.Is(err, unix.ESRCH) {
		return nil
	}

	return err
}

// stopProcess terminates h and waits up to timeout for the process to exit
// and, when drained is not nil, for its output to be fully read. Past the
// deadline the group is killed. Output still held open after a second
// timeout belongs to processes outside the group, and the read end is closed.
func stopProcess(h *Handle, drained <-chan struct{}, timeout time.Duration) (code int, forced bool) {
	log := log.WithFields(log.Fields{"action": "stopProcess()", "pid": h.Pid()})

	start := time.Now()
	defer func() {
		stopDuration.Observe(time.Since(start).Seconds())
	}()

	log.Info("clean shutdown starting")
	if err := h.Terminate(); err != nil {
		log.WithError(err).Warn("unable to send SIGTERM")
	}

	if !waitAll(timeout, h.Done(), drained) {
		log.Debug("deadline expired. force quit.")
		if err := h.Kill(); err != nil {
			log.WithError(err).Warn("kill failed")
		}
		forced = true

		if !waitAll(timeout, h.Done(), drained) {
			log.Warn("output still open after kill, closing it")
			h.output.Close()
			waitAll(0, drained)
		}
	}

	code, _ = h.Wait(0)

	log.WithField("code", code).Info("shutdown completed")
	return code, forced
}

// waitAll blocks until every non-nil channel is closed, or timeout passes.
// A timeout <= 0 waits indefinitely.
func waitAll(timeout time.Duration, chans ...<-chan struct{}) bool {
	var expired <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for _, ch := range chans {
		if ch == nil {
			continue
		}

		select {
		case <-ch:
		case <-expired:
			return false
		}
	}

	return true
}
