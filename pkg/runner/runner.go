// Package runner launches the external backup engine and streams its
// output line by line while the process is still running. Buffering until
// exit would defeat the live progress log, so lines are delivered as they
// arrive and mirrored into a bounded tail accumulator for later parsing.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/duplistack/core/pkg/engine"
	"github.com/duplistack/core/pkg/logger"
)

// ErrSpawn marks launch failures (missing or non-executable engine binary).
var ErrSpawn = errors.New("failed to spawn backup engine")

const lineChanBuffer = 256

// Runner launches engine processes. It carries no per-run state; every
// launch returns its own Handle.
type Runner struct {
	log       *logger.Logger
	tailLines int
}

func New(log *logger.Logger, tailLines int) *Runner {
	if tailLines <= 0 {
		tailLines = 2000
	}
	return &Runner{log: log, tailLines: tailLines}
}

// Handle tracks one launched engine process until it exits.
type Handle struct {
	pid   int
	lines chan string
	tail  *TailBuffer
	done  chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// Lines returns the live output stream. The channel is closed once the
// process has exited and all output has been delivered.
func (h *Handle) Lines() <-chan string { return h.lines }

// Tail returns the bounded output accumulator used for final parsing.
func (h *Handle) Tail() *TailBuffer { return h.tail }

// Output returns the retained output in emission order.
func (h *Handle) Output() string { return h.tail.Contents() }

// LastLine returns the most recent non-empty output line.
func (h *Handle) LastLine() string { return h.tail.LastLine() }

// Done is closed when the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the process exits and returns its exit code. A negative
// code means the process died on a signal before reporting one.
func (h *Handle) Wait() int {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// Launch starts the engine with the given invocation. It returns as soon as
// the process is running; output and exit status arrive through the Handle.
// Credentials live in the environment only, never in the argument vector.
func (r *Runner) Launch(ctx context.Context, inv engine.Invocation) (*Handle, error) {
	cmd := exec.Command(inv.BinaryPath, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = os.Environ()
	for k, v := range inv.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Own process group so Terminate can reach engine-forked helpers too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// stderr merges into stdout: the engine interleaves progress and
	// errors, and the live log wants them in emission order.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	h := &Handle{
		pid:   cmd.Process.Pid,
		lines: make(chan string, lineChanBuffer),
		tail:  NewTailBuffer(r.tailLines),
		done:  make(chan struct{}),
	}

	r.log.Debug().
		Str("action", "engine_launch").
		Str("command", inv.String()).
		Str("dir", inv.Dir).
		Int("pid", h.pid).
		Msg("Engine process started")

	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			h.tail.Append(line)
			h.lines <- line
		}
		close(h.lines)
	}()

	go func() {
		err := cmd.Wait()
		_ = pw.Close()

		code := 0
		if err != nil {
			code = -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			}
		}

		h.mu.Lock()
		h.exitCode = code
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)

		r.log.Debug().
			Str("action", "engine_exit").
			Int("pid", h.pid).
			Int("exit_code", code).
			Msg("Engine process exited")
	}()

	return h, nil
}

// Terminate asks the process group to stop and escalates to SIGKILL when it
// has not exited within the grace window. Cancellation stays cooperative:
// the engine gets a chance to close its storage session cleanly first.
func (r *Runner) Terminate(h *Handle, grace time.Duration) {
	select {
	case <-h.done:
		return
	default:
	}

	r.log.Info().
		Str("action", "engine_terminate").
		Int("pid", h.pid).
		Dur("grace", grace).
		Msg("Sending termination signal to engine process group")

	if err := syscall.Kill(-h.pid, syscall.SIGTERM); err != nil {
		r.log.Warn().Err(err).Int("pid", h.pid).Msg("Failed to signal process group")
	}

	select {
	case <-h.done:
	case <-time.After(grace):
		r.log.Warn().
			Str("action", "engine_kill").
			Int("pid", h.pid).
			Msg("Grace period expired, force-killing engine process group")
		_ = syscall.Kill(-h.pid, syscall.SIGKILL)
	}
}
