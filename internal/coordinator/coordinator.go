// Package coordinator is the process-lifecycle coordinator (SPEC_FULL.md
// C6): the facade that orders agent and integration starts/stops correctly
// (agent first on start, integrations first on stop) and deduplicates
// concurrent identical requests (start with start, stop with stop) for the
// same agent id. A start and a stop for the same agent id are not
// serialized against each other.
package coordinator

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/centerfire/agent-orchestrator/internal/agentmgr"
	"github.com/centerfire/agent-orchestrator/internal/integrationmgr"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// IntegrationRequest is one integration to bring up alongside an agent.
type IntegrationRequest struct {
	Type     string
	Settings map[string]any
}

// Enabled reports whether this integration should actually be started,
// defaulting to true when the settings map omits the "enabled" key —
// mirroring the original coordinator's `enabled, True` default.
func (r IntegrationRequest) Enabled() bool {
	if r.Settings == nil {
		return true
	}
	v, ok := r.Settings["enabled"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	return !ok || b
}

// Result captures the outcome of one component (the agent, or a single
// named integration) within a coordinated start/stop.
type Result struct {
	Component string
	Record    statusstore.Record
	Err       error
}

// Coordinator sequences agent/integration lifecycle operations and
// deduplicates concurrent requests for the same agent id via singleflight:
// overlapping starts share one execution and its result, as do overlapping
// stops. Starts and stops use separate singleflight keys, so a start and a
// stop for the same agent can run at the same time.
type Coordinator struct {
	agents       *agentmgr.Manager
	integrations *integrationmgr.Manager
	group        singleflight.Group
}

// New builds a Coordinator over an Agent Manager and Integration Manager.
func New(agents *agentmgr.Manager, integrations *integrationmgr.Manager) *Coordinator {
	return &Coordinator{agents: agents, integrations: integrations}
}

// StartAgentWithIntegrations starts the agent, then — only if the agent
// start succeeded — starts each enabled integration in order, matching
// ProcessLifecycleCoordinator.start_agent_with_integrations.
func (c *Coordinator) StartAgentWithIntegrations(ctx context.Context, agentID string, agentSettings map[string]any, integrations []IntegrationRequest) []Result {
	v, _, _ := c.group.Do("start:"+agentID, func() (any, error) {
		return c.startLocked(ctx, agentID, agentSettings, integrations), nil
	})
	return v.([]Result)
}

func (c *Coordinator) startLocked(ctx context.Context, agentID string, agentSettings map[string]any, integrations []IntegrationRequest) []Result {
	results := make([]Result, 0, len(integrations)+1)

	agentRec, err := c.agents.Start(ctx, agentID, agentSettings)
	results = append(results, Result{Component: "agent", Record: agentRec, Err: err})
	if err != nil {
		return results
	}

	for _, req := range integrations {
		if req.Type == "" || !req.Enabled() {
			continue
		}
		rec, ierr := c.integrations.Start(ctx, req.Type, agentID, req.Settings)
		results = append(results, Result{Component: "integration_" + req.Type, Record: rec, Err: ierr})
	}
	return results
}

// StopAgentWithIntegrations stops each named integration first, then the
// agent, matching stop_agent_with_integrations's ordering (so a crashed
// agent never leaves an integration trying to relay to a dead process).
func (c *Coordinator) StopAgentWithIntegrations(ctx context.Context, agentID string, integrationTypes []string, force bool) []Result {
	v, _, _ := c.group.Do("stop:"+agentID, func() (any, error) {
		return c.stopLocked(ctx, agentID, integrationTypes, force), nil
	})
	return v.([]Result)
}

func (c *Coordinator) stopLocked(ctx context.Context, agentID string, integrationTypes []string, force bool) []Result {
	results := make([]Result, 0, len(integrationTypes)+1)

	for _, t := range integrationTypes {
		err := c.integrations.Stop(ctx, t, agentID, force)
		results = append(results, Result{Component: "integration_" + t, Err: err})
	}

	err := c.agents.Stop(ctx, agentID, force)
	results = append(results, Result{Component: "agent", Err: err})
	return results
}
