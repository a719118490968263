// Package postgres is the pgx-backed implementation of the agent
// configuration repository (SPEC_FULL.md §3.1, C12), grounded on
// `codeready-toolchain-tarsy`'s pgx-pool usage pattern for the teacher
// pack's only real Postgres consumer.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/centerfire/agent-orchestrator/internal/config"
	"github.com/centerfire/agent-orchestrator/internal/errs"
)

// Repository implements config.Repository over a pgx connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches one agent's configuration, returning config.ErrNotFound when
// no row exists.
func (r *Repository) Get(ctx context.Context, agentID string) (config.AgentConfig, error) {
	const q = `SELECT id, name, description, owner_id, config_json, created_at, updated_at
	           FROM agent_configs WHERE id = $1`
	row := r.pool.QueryRow(ctx, q, agentID)

	var cfg config.AgentConfig
	var blob []byte
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Description, &cfg.OwnerID, &blob, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return config.AgentConfig{}, config.ErrNotFound
		}
		return config.AgentConfig{}, errs.Wrap(errs.KindStoreUnavailable, err)
	}
	if err := json.Unmarshal(blob, &cfg.Settings); err != nil {
		return config.AgentConfig{}, errs.Wrap(errs.KindStoreUnavailable, err)
	}
	return cfg, nil
}

// List returns every agent configuration owned by ownerID, or every row
// when ownerID is empty.
func (r *Repository) List(ctx context.Context, ownerID string) ([]config.AgentConfig, error) {
	var rows pgx.Rows
	var err error
	if ownerID == "" {
		rows, err = r.pool.Query(ctx, `SELECT id, name, description, owner_id, config_json, created_at, updated_at FROM agent_configs ORDER BY id`)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT id, name, description, owner_id, config_json, created_at, updated_at FROM agent_configs WHERE owner_id = $1 ORDER BY id`, ownerID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err)
	}
	defer rows.Close()

	var out []config.AgentConfig
	for rows.Next() {
		var cfg config.AgentConfig
		var blob []byte
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Description, &cfg.OwnerID, &blob, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, errs.Wrap(errs.KindStoreUnavailable, err)
		}
		if err := json.Unmarshal(blob, &cfg.Settings); err != nil {
			return nil, errs.Wrap(errs.KindStoreUnavailable, err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err)
	}
	return out, nil
}

// Upsert inserts or replaces cfg, bumping updated_at to now().
func (r *Repository) Upsert(ctx context.Context, cfg config.AgentConfig) error {
	blob, err := json.Marshal(cfg.Settings)
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err)
	}
	const q = `INSERT INTO agent_configs (id, name, description, owner_id, config_json, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, now(), now())
	           ON CONFLICT (id) DO UPDATE SET
	             name = EXCLUDED.name,
	             description = EXCLUDED.description,
	             owner_id = EXCLUDED.owner_id,
	             config_json = EXCLUDED.config_json,
	             updated_at = now()`
	if _, err := r.pool.Exec(ctx, q, cfg.ID, cfg.Name, cfg.Description, cfg.OwnerID, blob); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err)
	}
	return nil
}

// Delete removes an agent's configuration row.
func (r *Repository) Delete(ctx context.Context, agentID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM agent_configs WHERE id = $1`, agentID); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err)
	}
	return nil
}

var _ config.Repository = (*Repository)(nil)
