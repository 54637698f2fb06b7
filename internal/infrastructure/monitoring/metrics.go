package monitoring

import (
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/integral/internal/coordinator"
	"github.com/GriffinCanCode/integral/internal/protocol"
)

// Metrics collects dispatch metrics for one coordinator run. It implements
// coordinator.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Dispatch metrics
	Packets         prometheus.Gauge
	DispatchedTotal *prometheus.CounterVec
	MergedTotal     *prometheus.CounterVec
	RoundTrip       prometheus.Histogram
	Outstanding     prometheus.Gauge
	Accumulator     prometheus.Gauge
	Phase           *prometheus.GaugeVec

	// Status server metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	startTime time.Time

	// Snapshot for the JSON status endpoint
	mu       sync.RWMutex
	progress Progress
}

// Progress is a point-in-time view of a coordinator run.
type Progress struct {
	RunID       string      `json:"run_id"`
	Phase       string      `json:"phase"`
	Packets     int         `json:"packets"`
	Dispatched  int         `json:"dispatched"`
	Received    int         `json:"received"`
	Outstanding int         `json:"outstanding"`
	Accumulator float64     `json:"accumulator"`
	PerWorker   map[int]int `json:"per_worker"`
	Uptime      float64     `json:"uptime_seconds"`
}

var _ coordinator.Observer = (*Metrics)(nil)

// NewMetrics creates a collector on its own registry, so several runs in one
// process do not collide.
func NewMetrics(runID string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		progress: Progress{
			RunID:     runID,
			Phase:     coordinator.PhasePriming.String(),
			PerWorker: make(map[int]int),
		},

		Packets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "integral_packets",
			Help: "Number of packets in the run",
		}),
		DispatchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integral_packets_dispatched_total",
				Help: "WORK messages sent, by worker rank",
			},
			[]string{"worker"},
		),
		MergedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integral_results_merged_total",
				Help: "RESULT messages merged into the accumulator, by worker rank",
			},
			[]string{"worker"},
		),
		RoundTrip: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "integral_packet_round_trip_seconds",
			Help:    "Time from dispatching a packet to merging its result",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		Outstanding: factory.NewGauge(prometheus.GaugeOpts{
			Name: "integral_packets_outstanding",
			Help: "Packets dispatched but not yet answered",
		}),
		Accumulator: factory.NewGauge(prometheus.GaugeOpts{
			Name: "integral_accumulator",
			Help: "Running sum of merged partial results",
		}),
		Phase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "integral_coordinator_phase",
				Help: "1 for the coordinator's current phase, 0 otherwise",
			},
			[]string{"phase"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "integral_http_requests_total",
				Help: "Total number of status server requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "integral_http_request_duration_seconds",
				Help:    "Status server request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "integral_uptime_seconds",
		Help: "Seconds since the run started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	m.Phase.WithLabelValues(coordinator.PhasePriming.String()).Set(1)
	return m
}

// SetPackets records the size of the packet sequence.
func (m *Metrics) SetPackets(n int) {
	m.Packets.Set(float64(n))
	m.mu.Lock()
	m.progress.Packets = n
	m.mu.Unlock()
}

// PhaseChanged marks p as the current phase.
func (m *Metrics) PhaseChanged(p coordinator.Phase) {
	m.mu.Lock()
	prev := m.progress.Phase
	m.progress.Phase = p.String()
	m.mu.Unlock()

	m.Phase.WithLabelValues(prev).Set(0)
	m.Phase.WithLabelValues(p.String()).Set(1)
}

// Dispatched records a WORK message to rank to.
func (m *Metrics) Dispatched(to protocol.Rank, _ int) {
	m.DispatchedTotal.WithLabelValues(rankLabel(to)).Inc()
	m.Outstanding.Inc()

	m.mu.Lock()
	m.progress.Dispatched++
	m.progress.Outstanding++
	m.mu.Unlock()
}

// Merged records a RESULT from rank from.
func (m *Metrics) Merged(from protocol.Rank, _ float64, acc float64, roundTrip time.Duration) {
	m.MergedTotal.WithLabelValues(rankLabel(from)).Inc()
	m.Outstanding.Dec()
	m.Accumulator.Set(acc)
	m.RoundTrip.Observe(roundTrip.Seconds())

	m.mu.Lock()
	m.progress.Received++
	m.progress.Outstanding--
	m.progress.Accumulator = acc
	m.progress.PerWorker[int(from)]++
	m.mu.Unlock()
}

// RecordHTTPRequest records a status server request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Progress returns a copy of the current run state.
func (m *Metrics) Progress() Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := m.progress
	p.PerWorker = maps.Clone(m.progress.PerWorker)
	p.Uptime = time.Since(m.startTime).Seconds()
	return p
}

// Registry returns the registry all run metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
