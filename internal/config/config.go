// Package config defines the agent configuration repository contract
// (SPEC_FULL.md C12, §3.1): CRUD over per-agent settings, with the
// concrete Postgres implementation in internal/config/postgres so the
// Control Plane and Child Runtime can depend on the interface alone.
package config

import (
	"context"
	"time"
)

// AgentConfig is one row of the agent_configs table.
type AgentConfig struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	OwnerID     string         `json:"owner_id"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Repository is the CRUD contract over agent configurations.
type Repository interface {
	Get(ctx context.Context, agentID string) (AgentConfig, error)
	List(ctx context.Context, ownerID string) ([]AgentConfig, error)
	Upsert(ctx context.Context, cfg AgentConfig) error
	Delete(ctx context.Context, agentID string) error
}

// ErrNotFound is returned by Get when no row matches the given agent id.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "agent config not found" }
