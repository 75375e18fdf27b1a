package supervisor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/ivan3bx/hamlaunch"
	"golang.org/x/sys/unix"
)

// Handle owns one running invocation of an external binary: its OS
// process, the read end of its merged output and its exit status.
type Handle struct {
	Path string
	Args []string
	Dir  string

	cmd    *exec.Cmd
	output *os.File

	done chan struct{}
	code int
}

// StartProcess launches path with args in dir. Stdout and stderr are
// merged into the stream returned by Output. The process is placed in its
// own process group so signals reach anything it spawns.
func StartProcess(path string, args []string, dir string) (*Handle, error) {
	log := log.WithFields(log.Fields{"action": "StartProcess()", "path": path})

	if err := checkExecutable(path); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	r, w, err := mergedOutput(cmd)

	if err != nil {
		log.WithError(err).Error("unable to pipe output")
		return nil, fmt.Errorf("%w: %w", hamlaunch.ErrLaunch, err)
	}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		log.WithError(err).Error("command failed")
		return nil, classifyStartError(path, err)
	}

	// the child holds its own copy of the write end
	w.Close()

	h := &Handle{
		Path:   path,
		Args:   args,
		Dir:    dir,
		cmd:    cmd,
		output: r,
		done:   make(chan struct{}),
	}

	go h.reap()

	return h, nil
}

// Pid is the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Output is the merged stdout/stderr stream. Whoever reads it closes it.
func (h *Handle) Output() io.ReadCloser {
	return h.output
}

// Done is closed once the exit status has been collected.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Poll reports the exit code if the process has exited. It never blocks.
func (h *Handle) Poll() (code int, exited bool) {
	select {
	case <-h.done:
		return h.code, true
	default:
		return 0, false
	}
}

// Wait blocks up to timeout for the process to exit and returns its exit
// code, or ErrTimedOut. A timeout <= 0 waits indefinitely.
func (h *Handle) Wait(timeout time.Duration) (int, error) {
	if timeout <= 0 {
		<-h.done
		return h.code, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.code, nil
	case <-timer.C:
		return 0, hamlaunch.ErrTimedOut
	}
}

// reap collects the exit status exactly once.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.code = exitCode(h.cmd.ProcessState, err)
	close(h.done)
}

// exitCode returns the exit status, or the negated signal number when the
// process was killed by a signal.
func exitCode(state *os.ProcessState, err error) int {
	if state == nil {
		log.WithError(err).Warn("no exit status available")
		return -1
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}

	return state.ExitCode()
}

// checkExecutable verifies that path names an existing, executable file.
func checkExecutable(path string) error {
	info, err := os.Stat(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", hamlaunch.ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", hamlaunch.ErrPermission, path)
	case err != nil:
		return fmt.Errorf("%w: %w", hamlaunch.ErrLaunch, err)
	case info.IsDir():
		return fmt.Errorf("%w: %s is a directory", hamlaunch.ErrPermission, path)
	}

	if err := unix.Access(path, unix.X_OK); err != nil {
		return fmt.Errorf("%w: %s", hamlaunch.ErrPermission, path)
	}

	return nil
}

func classifyStartError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", hamlaunch.ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", hamlaunch.ErrPermission, path)
	default:
		return fmt.Errorf("%w: %w", hamlaunch.ErrLaunch, err)
	}
}
