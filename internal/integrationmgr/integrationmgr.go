// Package integrationmgr is the Integration Manager (SPEC_FULL.md C5): the
// same lifecycle.Spec shape as agentmgr but keyed by (integration type,
// agent id) and always passing --agent-id plus an --integration-settings
// blob, grounded on IntegrationProcessManager.start_integration_process.
package integrationmgr

import (
	"context"
	"encoding/json"
	"os"

	"github.com/centerfire/agent-orchestrator/internal/errs"
	"github.com/centerfire/agent-orchestrator/internal/lifecycle"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// Manager starts, stops, and restarts integration channel-adapter
// processes (telegram, whatsapp, websocket, ...).
type Manager struct {
	lifecycle   *lifecycle.Manager
	runnerPaths map[string]string
	projectRoot string
}

// New builds a Manager with one runner binary path per integration type.
func New(lm *lifecycle.Manager, runnerPaths map[string]string, projectRoot string) *Manager {
	return &Manager{lifecycle: lm, runnerPaths: runnerPaths, projectRoot: projectRoot}
}

// Start launches the integration worker for (integrationType, agentID).
func (m *Manager) Start(ctx context.Context, integrationType, agentID string, settings map[string]any) (statusstore.Record, error) {
	spec, err := m.spec(integrationType, agentID, settings)
	if err != nil {
		return statusstore.Record{}, err
	}
	return m.lifecycle.Start(ctx, spec)
}

// Stop terminates the integration worker for (integrationType, agentID).
func (m *Manager) Stop(ctx context.Context, integrationType, agentID string, force bool) error {
	spec, err := m.spec(integrationType, agentID, nil)
	if err != nil {
		return err
	}
	return m.lifecycle.Stop(ctx, spec, force)
}

// Restart force-stops and restarts the integration worker.
func (m *Manager) Restart(ctx context.Context, integrationType, agentID string, settings map[string]any) (statusstore.Record, error) {
	spec, err := m.spec(integrationType, agentID, settings)
	if err != nil {
		return statusstore.Record{}, err
	}
	return m.lifecycle.Restart(ctx, spec)
}

func (m *Manager) spec(integrationType, agentID string, settings map[string]any) (lifecycle.Spec, error) {
	if agentID == "" || integrationType == "" {
		return lifecycle.Spec{}, errs.New(errs.KindConfigMissing, "integration type and agent id must not be empty")
	}
	runnerPath, ok := m.runnerPaths[integrationType]
	if !ok {
		return lifecycle.Spec{}, errs.New(errs.KindConfigMissing, "no runner configured for integration type "+integrationType)
	}
	return lifecycle.Spec{
		StatusKey: statusstore.IntegrationStatusKey(integrationType, agentID),
		Validate: func() error {
			if _, err := os.Stat(runnerPath); err != nil {
				return errs.Wrap(errs.KindConfigMissing, err)
			}
			return nil
		},
		BuildCommand: func() ([]string, string, []string) {
			argv := []string{runnerPath, "--agent-id", agentID, "--integration-type", integrationType}
			if settings != nil {
				blob, _ := json.Marshal(settings)
				argv = append(argv, "--integration-settings", string(blob))
			}
			return argv, m.projectRoot, os.Environ()
		},
	}, nil
}
