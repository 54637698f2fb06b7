package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/integral/internal/coordinator"
)

func TestProgressTracksObserverCalls(t *testing.T) {
	m := NewMetrics("run_01")
	m.SetPackets(3)

	m.PhaseChanged(coordinator.PhasePriming)
	m.Dispatched(1, 0)
	m.Dispatched(2, 1)
	m.PhaseChanged(coordinator.PhaseSteady)
	m.Merged(2, 0.25, 0.25, 3*time.Millisecond)
	m.Dispatched(2, 2)
	m.PhaseChanged(coordinator.PhaseDraining)

	p := m.Progress()
	assert.Equal(t, "run_01", p.RunID)
	assert.Equal(t, coordinator.PhaseDraining.String(), p.Phase)
	assert.Equal(t, 3, p.Packets)
	assert.Equal(t, 3, p.Dispatched)
	assert.Equal(t, 1, p.Received)
	assert.Equal(t, 2, p.Outstanding)
	assert.InDelta(t, 0.25, p.Accumulator, 1e-12)
	assert.Equal(t, map[int]int{2: 1}, p.PerWorker)
	assert.GreaterOrEqual(t, p.Uptime, 0.0)
}

func TestProgressIsACopy(t *testing.T) {
	m := NewMetrics("run_02")
	m.Merged(1, 1, 1, time.Millisecond)

	p := m.Progress()
	p.PerWorker[1] = 99

	assert.Equal(t, 1, m.Progress().PerWorker[1])
}

func TestHandlerExposesRunMetrics(t *testing.T) {
	m := NewMetrics("run_03")
	m.SetPackets(100)
	m.Dispatched(1, 0)
	m.Merged(1, 0.5, 0.5, 2*time.Millisecond)
	m.PhaseChanged(coordinator.PhaseShutdown)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "integral_packets 100")
	assert.Contains(t, text, `integral_packets_dispatched_total{worker="1"} 1`)
	assert.Contains(t, text, `integral_results_merged_total{worker="1"} 1`)
	assert.Contains(t, text, `integral_coordinator_phase{phase="shutdown"} 1`)
	assert.Contains(t, text, `integral_coordinator_phase{phase="priming"} 0`)
	assert.Contains(t, text, "integral_packet_round_trip_seconds_count 1")
	assert.Contains(t, text, "integral_uptime_seconds")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewMetrics("run_a")
	b := NewMetrics("run_b")

	assert.NotSame(t, a.Registry(), b.Registry())
}
