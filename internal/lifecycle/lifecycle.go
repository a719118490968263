// Package lifecycle implements the generic start/stop/restart state machine
// shared by the Agent Manager (C4) and Integration Manager (C5), grounded on
// the Python ProcessLifecycleManager/ProcessStatusManager pairing and on
// AGT-MANAGER-1's startAgent/stopAgentProcess/monitorAgent methods. Callers
// supply a Spec describing how to validate and build the command for their
// process flavor; Manager owns the status bookkeeping.
package lifecycle

import (
	"context"
	"time"

	"github.com/centerfire/agent-orchestrator/internal/errs"
	"github.com/centerfire/agent-orchestrator/internal/launcher"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// GracefulTimeout is the default SIGTERM-to-SIGKILL escalation window
// (SPEC_FULL.md §4.2).
const GracefulTimeout = 30 * time.Second

// restartSettleDelay is how long Restart waits between the force-stop and
// the subsequent start, matching the Python restart_process_unified's
// asyncio.sleep(2.0) so the OS has reliably reaped the old PID first.
const restartSettleDelay = 2 * time.Second

// Spec describes one process flavor's prerequisites and command shape.
// Agent Manager and Integration Manager each construct one per request
// rather than subclassing, the Go analog of the Python manager hierarchy.
type Spec struct {
	// StatusKey is the Redis hash key for this process's status record.
	StatusKey string
	// Validate checks flavor-specific prerequisites (script exists, id
	// well-formed, etc.) before a spawn is attempted.
	Validate func() error
	// BuildCommand returns the argv, working directory, and environment
	// to spawn.
	BuildCommand func() (argv []string, workingDir string, env []string)
	// GracefulTimeout overrides GracefulTimeout when non-zero.
	GracefulTimeout time.Duration
	// OnExit, when set, is invoked once the spawned process has exited,
	// whether on its own or via Stop — the monitored-exit enrichment
	// modeled on AGT-MANAGER-1's monitorAgent.
	OnExit func(exitErr error)
}

func (s Spec) gracefulTimeout() time.Duration {
	if s.GracefulTimeout > 0 {
		return s.GracefulTimeout
	}
	return GracefulTimeout
}

// Manager drives Spec-described processes through the not_found -> starting
// -> running -> stopping -> stopped state machine, including the
// error_start_failed / error_stop_failed / error_process_lost excursions
// from SPEC_FULL.md §3.2.
type Manager struct {
	store    *statusstore.Store
	launcher *launcher.Launcher
}

// New builds a Manager around an existing status store and process
// launcher.
func New(store *statusstore.Store, l *launcher.Launcher) *Manager {
	return &Manager{store: store, launcher: l}
}

// Start spawns the process described by spec unless one is already live,
// in which case it is a no-op (SPEC_FULL.md's "at most one live process per
// id" invariant, mirroring start_agent_process's early-return checks).
func (m *Manager) Start(ctx context.Context, spec Spec) (statusstore.Record, error) {
	cur, err := m.store.Get(ctx, spec.StatusKey)
	if err != nil {
		return statusstore.Record{}, err
	}
	if cur.IsLive() {
		return cur, nil
	}

	if spec.Validate != nil {
		if verr := spec.Validate(); verr != nil {
			werr := errs.Wrap(errs.KindConfigMissing, verr)
			_ = m.store.SetFields(ctx, spec.StatusKey, map[string]any{
				"status":       string(statusstore.StatusErrorStartFailed),
				"error_detail": errs.Detail(werr),
			})
			return statusstore.Record{Status: statusstore.StatusErrorStartFailed, ErrorDetail: errs.Detail(werr)}, werr
		}
	}

	if err := m.store.SetFields(ctx, spec.StatusKey, map[string]any{
		"status":            string(statusstore.StatusStarting),
		"start_attempt_utc": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return statusstore.Record{}, err
	}

	argv, workingDir, env := spec.BuildCommand()
	pid, err := m.launcher.SpawnMonitored(argv, workingDir, env, spec.OnExit)
	if err != nil {
		werr := errs.Wrap(errs.KindSpawnFailure, err)
		_ = m.store.SetFields(ctx, spec.StatusKey, map[string]any{
			"status":       string(statusstore.StatusErrorStartFailed),
			"error_detail": errs.Detail(werr),
		})
		return statusstore.Record{Status: statusstore.StatusErrorStartFailed, ErrorDetail: errs.Detail(werr)}, werr
	}

	if err := m.store.SetFields(ctx, spec.StatusKey, map[string]any{
		"status": string(statusstore.StatusRunning),
		"pid":    pid,
	}); err != nil {
		return statusstore.Record{}, err
	}
	return statusstore.Record{Status: statusstore.StatusRunning, PID: pid}, nil
}

// Stop terminates the process at spec.StatusKey. force skips the graceful
// SIGTERM phase and kills immediately; otherwise Stop escalates to SIGKILL
// only if the graceful window in spec expires, matching
// stop_agent_process's two-phase shutdown.
func (m *Manager) Stop(ctx context.Context, spec Spec, force bool) error {
	cur, err := m.store.Get(ctx, spec.StatusKey)
	if err != nil {
		return err
	}
	if cur.Status == statusstore.StatusNotFound || cur.Status == statusstore.StatusStopped {
		return nil
	}
	if cur.PID == 0 {
		return m.store.SetFields(ctx, spec.StatusKey, map[string]any{"status": string(statusstore.StatusStopped)})
	}

	if err := m.store.SetFields(ctx, spec.StatusKey, map[string]any{
		"status": string(statusstore.StatusStopping),
	}); err != nil {
		return err
	}

	var exited bool
	if force {
		exited = m.launcher.SendKill(ctx, cur.PID)
	} else {
		exited = m.launcher.SendGracefulSignal(ctx, cur.PID, spec.gracefulTimeout())
		if !exited {
			exited = m.launcher.SendKill(ctx, cur.PID)
		}
	}

	if !exited {
		werr := errs.New(errs.KindStopTimeout, "process did not exit after graceful and kill signals")
		_ = m.store.SetFields(ctx, spec.StatusKey, map[string]any{
			"status":       string(statusstore.StatusErrorStopFailed),
			"error_detail": errs.Detail(werr),
		})
		return werr
	}

	if err := m.store.ClearPID(ctx, spec.StatusKey); err != nil {
		return err
	}
	return m.store.SetFields(ctx, spec.StatusKey, map[string]any{"status": string(statusstore.StatusStopped)})
}

// Restart force-stops the process, waits for the OS to settle, and starts
// it again, reporting which phase failed in error_detail if either step
// errors (SPEC_FULL.md §4.3).
func (m *Manager) Restart(ctx context.Context, spec Spec) (statusstore.Record, error) {
	if err := m.Stop(ctx, spec, true); err != nil {
		perr := wrapPhase("stop", err)
		_ = m.store.SetFields(ctx, spec.StatusKey, map[string]any{"error_detail": errs.Detail(perr)})
		return statusstore.Record{}, perr
	}

	if err := m.store.SetFields(ctx, spec.StatusKey, map[string]any{
		"status": string(statusstore.StatusRestarting),
	}); err != nil {
		return statusstore.Record{}, err
	}

	select {
	case <-time.After(restartSettleDelay):
	case <-ctx.Done():
		return statusstore.Record{}, ctx.Err()
	}

	rec, err := m.Start(ctx, spec)
	if err != nil {
		perr := wrapPhase("start", err)
		rec.ErrorDetail = errs.Detail(perr)
		_ = m.store.SetFields(ctx, spec.StatusKey, map[string]any{"error_detail": rec.ErrorDetail})
		return rec, perr
	}
	return rec, nil
}

func wrapPhase(phase string, err error) error {
	return errs.Wrap(errs.KindSpawnFailure, phaseError{phase: phase, cause: err})
}

type phaseError struct {
	phase string
	cause error
}

func (p phaseError) Error() string { return "restart " + p.phase + " phase: " + p.cause.Error() }
func (p phaseError) Unwrap() error { return p.cause }
