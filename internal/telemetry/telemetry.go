// Package telemetry wires the ambient observability stack (SPEC_FULL.md
// C14): structured logging and Prometheus metrics shared by every cmd/
// entrypoint.
package telemetry

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// NewLogger builds a JSON structured logger at the given level, writing to
// stderr so stdout stays free for any process-managed IPC. level accepts
// the usual names ("debug", "info", "warn", "error"); unrecognized values
// fall back to info. The cmd/ entrypoints pass their --log-level flag.
func NewLogger(component, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler).With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Metrics groups the Prometheus collectors shared across the orchestration
// core, registered against a private Registry. No cmd/ entrypoint serves
// the Registry over HTTP; there is no /metrics endpoint.
type Metrics struct {
	Registry *prometheus.Registry

	ProcessStarts    *prometheus.CounterVec
	ProcessStops     *prometheus.CounterVec
	ProcessFailures  *prometheus.CounterVec
	LiveProcesses    *prometheus.GaugeVec
	HistoryDropped   prometheus.Counter
	HistoryPersisted prometheus.Counter
	WSDroppedFrames  prometheus.Counter
}

// NewMetrics constructs and registers the standard collector set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ProcessStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_process_starts_total",
			Help: "Number of process start attempts, by process type.",
		}, []string{"process_type"}),
		ProcessStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_process_stops_total",
			Help: "Number of process stop attempts, by process type.",
		}, []string{"process_type"}),
		ProcessFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_process_failures_total",
			Help: "Number of start/stop failures, by process type and phase.",
		}, []string{"process_type", "phase"}),
		LiveProcesses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_live_processes",
			Help: "Current number of processes believed live, by process type.",
		}, []string{"process_type"}),
		HistoryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_history_dropped_total",
			Help: "Chat history events dropped due to validation or DB-write failure.",
		}),
		HistoryPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_history_persisted_total",
			Help: "Chat history events successfully persisted.",
		}),
		WSDroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_ws_dropped_frames_total",
			Help: "Output frames dropped due to a full per-connection outbound buffer.",
		}),
	}
	reg.MustRegister(
		m.ProcessStarts, m.ProcessStops, m.ProcessFailures, m.LiveProcesses,
		m.HistoryDropped, m.HistoryPersisted, m.WSDroppedFrames,
	)
	return m
}
