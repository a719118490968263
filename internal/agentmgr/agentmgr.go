// Package agentmgr is the Agent Manager (SPEC_FULL.md C4): it knows how to
// turn an agent id and its settings blob into a lifecycle.Spec for the
// agentrunner binary, grounded on AgentProcessManager.start_agent_process /
// build_process_command_unified in the original implementation.
package agentmgr

import (
	"context"
	"encoding/json"
	"os"

	"github.com/centerfire/agent-orchestrator/internal/errs"
	"github.com/centerfire/agent-orchestrator/internal/lifecycle"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// Manager starts, stops, and restarts agent worker processes.
type Manager struct {
	lifecycle   *lifecycle.Manager
	runnerPath  string
	projectRoot string
}

// New builds a Manager that spawns runnerPath (the agentrunner binary, or
// "go run"-style invocation in development) with projectRoot as its
// working directory.
func New(lm *lifecycle.Manager, runnerPath, projectRoot string) *Manager {
	return &Manager{lifecycle: lm, runnerPath: runnerPath, projectRoot: projectRoot}
}

// Start launches the agent worker for agentID, idempotently, passing
// settings through as a JSON-encoded --agent-settings flag when non-nil.
func (m *Manager) Start(ctx context.Context, agentID string, settings map[string]any) (statusstore.Record, error) {
	spec, err := m.spec(agentID, settings)
	if err != nil {
		return statusstore.Record{}, err
	}
	return m.lifecycle.Start(ctx, spec)
}

// Stop terminates the agent worker for agentID.
func (m *Manager) Stop(ctx context.Context, agentID string, force bool) error {
	spec, err := m.spec(agentID, nil)
	if err != nil {
		return err
	}
	return m.lifecycle.Stop(ctx, spec, force)
}

// Restart force-stops and restarts the agent worker, reusing settings for
// the subsequent start.
func (m *Manager) Restart(ctx context.Context, agentID string, settings map[string]any) (statusstore.Record, error) {
	spec, err := m.spec(agentID, settings)
	if err != nil {
		return statusstore.Record{}, err
	}
	return m.lifecycle.Restart(ctx, spec)
}

func (m *Manager) spec(agentID string, settings map[string]any) (lifecycle.Spec, error) {
	if agentID == "" {
		return lifecycle.Spec{}, errs.New(errs.KindConfigMissing, "agent id must not be empty")
	}
	return lifecycle.Spec{
		StatusKey: statusstore.AgentStatusKey(agentID),
		Validate: func() error {
			if _, err := os.Stat(m.runnerPath); err != nil {
				return errs.Wrap(errs.KindConfigMissing, err)
			}
			return nil
		},
		BuildCommand: func() ([]string, string, []string) {
			argv := []string{m.runnerPath, "--agent-id", agentID}
			if settings != nil {
				blob, _ := json.Marshal(settings)
				argv = append(argv, "--agent-settings", string(blob))
			}
			return argv, m.projectRoot, os.Environ()
		},
	}, nil
}
