// Package launcher is a small facade over OS process primitives: spawn,
// graceful-signal, kill, and liveness probe (SPEC_FULL.md §4.2). It is
// deliberately ignorant of exit codes beyond "is this PID alive" — the
// Lifecycle Manager layers status semantics on top.
package launcher

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// Launcher spawns and signals detached child processes.
type Launcher struct {
	// PollInterval is how often IsAlive-based waits re-check the PID.
	PollInterval time.Duration
}

// New returns a Launcher with the default 0.5s poll interval from
// SPEC_FULL.md §4.2.
func New() *Launcher {
	return &Launcher{PollInterval: 500 * time.Millisecond}
}

// LaunchFailure wraps the underlying OS error for a failed spawn so
// callers can record it verbatim as error_detail.
type LaunchFailure struct {
	Argv []string
	Err  error
}

func (f *LaunchFailure) Error() string {
	return "spawn failed: " + f.Err.Error()
}

func (f *LaunchFailure) Unwrap() error { return f.Err }

// Spawn starts argv[0] with the remaining argv as arguments, in
// workingDir, with env as its environment. The child is started detached
// (no stdio capture); a background goroutine reaps it when it exits, and
// callers track its liveness by PID via the status store and IsAlive.
func (l *Launcher) Spawn(argv []string, workingDir string, env []string) (pid int, err error) {
	return l.SpawnMonitored(argv, workingDir, env, nil)
}

// SpawnMonitored is Spawn plus an optional onExit callback invoked once the
// process has been reaped, with the exit error (nil on a clean exit). It
// is used by the Lifecycle Manager to detect an agent dying on its own
// rather than via an explicit stop request.
func (l *Launcher) SpawnMonitored(argv []string, workingDir string, env []string, onExit func(error)) (pid int, err error) {
	if len(argv) == 0 {
		return 0, &LaunchFailure{Err: errors.New("empty argv")}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workingDir
	cmd.Env = env
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, &LaunchFailure{Argv: argv, Err: err}
	}

	// Reap the process asynchronously so it does not become a zombie once
	// it exits; callers observe liveness through the status store's PID
	// reconciliation rather than this goroutine's result.
	go func() {
		waitErr := cmd.Wait()
		if onExit != nil {
			onExit(waitErr)
		}
	}()

	return cmd.Process.Pid, nil
}

// IsAlive performs a non-intrusive liveness check for pid.
func (l *Launcher) IsAlive(pid int) bool {
	return pidAlive(pid)
}

// SendGracefulSignal requests termination and polls liveness every
// PollInterval up to timeout, returning whether the process exited.
func (l *Launcher) SendGracefulSignal(ctx context.Context, pid int, timeout time.Duration) bool {
	if !l.IsAlive(pid) {
		return true
	}
	if err := sendTerm(pid); err != nil {
		return !l.IsAlive(pid)
	}
	return l.waitForExit(ctx, pid, timeout)
}

// SendKill unconditionally kills pid and reports whether it exited within
// a short grace window.
func (l *Launcher) SendKill(ctx context.Context, pid int) bool {
	if !l.IsAlive(pid) {
		return true
	}
	if err := sendKill(pid); err != nil {
		return !l.IsAlive(pid)
	}
	return l.waitForExit(ctx, pid, time.Second)
}

func (l *Launcher) waitForExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()
	for {
		if !l.IsAlive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !l.IsAlive(pid)
		case <-ticker.C:
		}
	}
}

// FindExecutable resolves name on PATH, returning a LaunchFailure-shaped
// error when it cannot be found so validate-prerequisites checks can
// surface a clear error_detail.
func FindExecutable(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "executable %q not found", name)
	}
	return path, nil
}

// Environ returns the current process environment with projectRoot
// prepended to the module search path, matching the child-process
// environment contract in SPEC_FULL.md §4.4/4.5.
func Environ(projectRoot, pathVar string) []string {
	env := os.Environ()
	if projectRoot == "" {
		return env
	}
	if cur := os.Getenv(pathVar); cur != "" {
		return append(env, pathVar+"="+projectRoot+string(os.PathListSeparator)+cur)
	}
	return append(env, pathVar+"="+projectRoot)
}
