// Package statusstore provides typed access to the per-process status
// hashes kept in Redis (SPEC_FULL.md §3.2, §4.1). It performs PID
// reconciliation on read so callers never observe a stale "running"
// record for a process the OS has already reaped.
package statusstore

import "time"

// Status is the process lifecycle state enum, exactly as SPEC_FULL.md §3.2
// defines it.
type Status string

const (
	StatusNotFound          Status = "not_found"
	StatusStopped           Status = "stopped"
	StatusStarting          Status = "starting"
	StatusInitializing      Status = "initializing"
	StatusRunning           Status = "running"
	StatusStopping          Status = "stopping"
	StatusError             Status = "error"
	StatusErrorProcessLost  Status = "error_process_lost"
	StatusErrorStartFailed  Status = "error_start_failed"
	StatusErrorStopFailed   Status = "error_stop_failed"
	StatusRestarting        Status = "restarting"
)

// Live is the set of statuses that imply a process should currently hold a
// live PID — used both for "at most one live process" checks and for PID
// reconciliation.
var Live = map[Status]bool{
	StatusStarting:     true,
	StatusInitializing: true,
	StatusRunning:      true,
}

// Record is one process's status hash, decoded from Redis field strings
// into native Go types.
type Record struct {
	Status          Status
	PID             int
	LastActive      time.Time
	ErrorDetail     string
	StartAttemptUTC time.Time
}

// IsLive reports whether r represents a process the supervisor currently
// believes is starting, initializing, or running.
func (r Record) IsLive() bool {
	return Live[r.Status]
}

// AgentStatusKey returns the Redis hash key for agentID's current-form
// status record.
func AgentStatusKey(agentID string) string {
	return "agent_process:" + agentID + ":status"
}

// LegacyAgentStatusKey returns the pre-migration key form some in-flight
// runners may still write to (SPEC_FULL.md §3.2, §9).
func LegacyAgentStatusKey(agentID string) string {
	return "agent_status:" + agentID
}

// IntegrationStatusKey returns the Redis hash key for the given agent's
// integration-type status record.
func IntegrationStatusKey(integrationType, agentID string) string {
	return "integration_process:" + integrationType + ":" + agentID + ":status"
}
