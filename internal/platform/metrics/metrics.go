package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the go/no-go host.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	requestDuration     prometheus.Histogram
	trialsScoredTotal   prometheus.Counter
	rewardsTotal        prometheus.Counter
	lostSamplesTotal    prometheus.Counter
	stalePacketsTotal   prometheus.Counter
	syncLossesTotal     prometheus.Counter
	offsetClampsTotal   prometheus.Counter
	cleanCyclesTotal    prometheus.Counter
	recoveryCyclesTotal prometheus.Counter
	sessionsStarted     prometheus.Counter
	sessionsStopped     prometheus.Counter
	activeSessions      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the host.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	requestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gonogo_request_duration_seconds",
		Help:    "HTTP request handling time",
		Buckets: prometheus.DefBuckets,
	})
	trialsScoredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_trials_scored_total",
		Help: "Total number of trial results scored",
	})
	rewardsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_rewards_total",
		Help: "Total number of rewarded (hit) trials",
	})
	lostSamplesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_lost_samples_total",
		Help: "Total number of stream samples padded over gaps",
	})
	stalePacketsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_stale_packets_total",
		Help: "Total number of stream packets dropped for not advancing the cursor",
	})
	syncLossesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_sync_losses_total",
		Help: "Total number of stream gaps beyond the configured ceiling",
	})
	offsetClampsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_offset_clamps_total",
		Help: "Total number of next-stimulus offsets clamped to the fallback delay",
	})
	cleanCyclesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_clean_cycles_total",
		Help: "Total number of signal-loss cleaning cycles",
	})
	recoveryCyclesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_recovery_cycles_total",
		Help: "Total number of stalled-result recovery cycles",
	})
	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_sessions_started_total",
		Help: "Total number of sessions started",
	})
	sessionsStopped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gonogo_sessions_stopped_total",
		Help: "Total number of sessions stopped",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gonogo_active_sessions",
		Help: "Number of sessions currently registered",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		requestDuration,
		trialsScoredTotal,
		rewardsTotal,
		lostSamplesTotal,
		stalePacketsTotal,
		syncLossesTotal,
		offsetClampsTotal,
		cleanCyclesTotal,
		recoveryCyclesTotal,
		sessionsStarted,
		sessionsStopped,
		activeSessions,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		requestDuration:     requestDuration,
		trialsScoredTotal:   trialsScoredTotal,
		rewardsTotal:        rewardsTotal,
		lostSamplesTotal:    lostSamplesTotal,
		stalePacketsTotal:   stalePacketsTotal,
		syncLossesTotal:     syncLossesTotal,
		offsetClampsTotal:   offsetClampsTotal,
		cleanCyclesTotal:    cleanCyclesTotal,
		recoveryCyclesTotal: recoveryCyclesTotal,
		sessionsStarted:     sessionsStarted,
		sessionsStopped:     sessionsStopped,
		activeSessions:      activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveRequestDuration records one request's handling time in seconds.
func (m *Metrics) ObserveRequestDuration(seconds float64) {
	m.requestDuration.Observe(seconds)
}

// IncTrialsScored increments the scored trials counter.
func (m *Metrics) IncTrialsScored() {
	m.trialsScoredTotal.Inc()
}

// IncRewards increments the rewarded trials counter.
func (m *Metrics) IncRewards() {
	m.rewardsTotal.Inc()
}

// AddLostSamples adds padded gap samples to the loss counter.
func (m *Metrics) AddLostSamples(n int64) {
	m.lostSamplesTotal.Add(float64(n))
}

// IncStalePackets increments the dropped stale packet counter.
func (m *Metrics) IncStalePackets() {
	m.stalePacketsTotal.Inc()
}

// IncSyncLosses increments the over-ceiling gap counter.
func (m *Metrics) IncSyncLosses() {
	m.syncLossesTotal.Inc()
}

// IncOffsetClamps increments the clamped offset counter.
func (m *Metrics) IncOffsetClamps() {
	m.offsetClampsTotal.Inc()
}

// IncCleanCycles increments the cleaning cycle counter.
func (m *Metrics) IncCleanCycles() {
	m.cleanCyclesTotal.Inc()
}

// IncRecoveryCycles increments the stalled-result recovery counter.
func (m *Metrics) IncRecoveryCycles() {
	m.recoveryCyclesTotal.Inc()
}

// IncSessionsStarted increments the started sessions counter.
func (m *Metrics) IncSessionsStarted() {
	m.sessionsStarted.Inc()
}

// IncSessionsStopped increments the stopped sessions counter.
func (m *Metrics) IncSessionsStopped() {
	m.sessionsStopped.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
