package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centerfire/agent-orchestrator/internal/bus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchConfigDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Config{AgentID: "agent-1", Settings: map[string]any{"k": "v"}})
	}))
	defer srv.Close()

	rt := &Runtime{AgentID: "agent-1", ConfigURL: srv.URL, Logger: discardLogger(), HTTPClient: srv.Client()}
	cfg, err := rt.fetchConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "agent-1", cfg.AgentID)
	assert.Equal(t, "v", cfg.Settings["k"])
}

func TestFetchConfigNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rt := &Runtime{ConfigURL: srv.URL, Logger: discardLogger(), HTTPClient: srv.Client()}
	_, err := rt.fetchConfig(context.Background())
	assert.Error(t, err)
}

func TestDispatchControlShutdownStopsWithoutRestart(t *testing.T) {
	rt := &Runtime{Logger: discardLogger()}
	rt.running.Store(true)

	payload, err := json.Marshal(bus.ControlEnvelope{Command: bus.CommandShutdown})
	require.NoError(t, err)
	dispatchControl(rt.Logger, string(payload), rt.onControlShutdown, rt.onControlRestart)

	assert.False(t, rt.running.Load())
	assert.False(t, rt.needsRestart.Load())
}

func TestDispatchControlRestartSetsBothFlags(t *testing.T) {
	rt := &Runtime{Logger: discardLogger()}
	rt.running.Store(true)

	payload, err := json.Marshal(bus.ControlEnvelope{Command: bus.CommandRestart})
	require.NoError(t, err)
	dispatchControl(rt.Logger, string(payload), rt.onControlShutdown, rt.onControlRestart)

	assert.False(t, rt.running.Load())
	assert.True(t, rt.needsRestart.Load())
}

func TestDispatchControlMalformedPayloadIsIgnored(t *testing.T) {
	rt := &Runtime{Logger: discardLogger()}
	rt.running.Store(true)
	dispatchControl(rt.Logger, "not json", rt.onControlShutdown, rt.onControlRestart)
	assert.True(t, rt.running.Load())
}

func TestOnControlShutdownAndRestartAreWhatControlListenerWires(t *testing.T) {
	// controlListener (runtime.go) passes rt.onControlShutdown and
	// rt.onControlRestart straight into ListenControl/dispatchControl, so
	// exercising them here covers the exact callbacks the live listener
	// uses, not a second copy of the transition logic.
	rt := &Runtime{Logger: discardLogger()}
	rt.running.Store(true)
	rt.onControlRestart()
	assert.False(t, rt.running.Load())
	assert.True(t, rt.needsRestart.Load())

	rt.running.Store(true)
	rt.needsRestart.Store(true)
	rt.onControlShutdown()
	assert.False(t, rt.running.Load())
	assert.False(t, rt.needsRestart.Load())
}
