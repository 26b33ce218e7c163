package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Signal is a control request sent to a running capture.
type Signal int

const (
	// SignalQuit asks ffmpeg to finish the container and exit.
	SignalQuit Signal = iota
	// SignalTerminate sends SIGTERM to the process group.
	SignalTerminate
	// SignalKill sends SIGKILL to the process group.
	SignalKill
)

func (s Signal) String() string {
	switch s {
	case SignalQuit:
		return "quit"
	case SignalTerminate:
		return "terminate"
	case SignalKill:
		return "kill"
	default:
		return "unknown"
	}
}

// checkWaitDelay caps how long Check waits for output pipes after the
// decoder has been killed.
const checkWaitDelay = 2 * time.Second

// Command describes one capture process launch.
type Command struct {
	Binary  string
	Args    []string
	LogPath string
}

// Handle is a running capture process.
type Handle interface {
	PID() int
	Signal(sig Signal) error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Err reports the exit error after Done is closed.
	Err() error
}

// Runner starts capture processes and runs short decode checks.
type Runner interface {
	Start(ctx context.Context, cmd Command) (Handle, error)
	// Check runs binary to completion and returns its stderr.
	Check(ctx context.Context, binary string, args []string) ([]byte, error)
}

type execRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Start(_ context.Context, spec Command) (Handle, error) {
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture log: %w", err)
	}

	// The process must survive the caller's ctx; it is stopped only through Signal.
	cmd := exec.Command(spec.Binary, spec.Args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	stdin, err := cmd.StdinPipe()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("capture stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	h := &execHandle{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		logFile.Close()
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

func (execRunner) Check(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = checkWaitDelay
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

type execHandle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu        sync.Mutex
	err       error
	stdinShut bool
	done      chan struct{}
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Signal(sig Signal) error {
	switch sig {
	case SignalQuit:
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stdinShut {
			return nil
		}
		h.stdinShut = true
		_, err := io.WriteString(h.stdin, "q")
		closeErr := h.stdin.Close()
		return errors.Join(err, closeErr)
	case SignalTerminate:
		return h.signalGroup(unix.SIGTERM)
	case SignalKill:
		return h.signalGroup(unix.SIGKILL)
	default:
		return fmt.Errorf("unsupported signal %d", sig)
	}
}

func (h *execHandle) signalGroup(sig unix.Signal) error {
	pid := h.PID()
	if pid <= 0 {
		return errors.New("process not started")
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (h *execHandle) Done() <-chan struct{} { return h.done }

func (h *execHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
