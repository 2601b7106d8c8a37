package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry             *prometheus.Registry
	lockSubmissionsTotal *prometheus.CounterVec
	verifyPollsTotal     *prometheus.CounterVec
	faucetClaimsTotal    *prometheus.CounterVec
	realtimeEventsTotal  prometheus.Counter
	lockUnlocked         prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxgate_lock_submissions_total",
		Help: "Total number of ETH lock submission attempts",
	}, []string{"status"})

	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxgate_verification_polls_total",
		Help: "Total number of lock verification refresh cycles",
	}, []string{"result"})

	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxgate_faucet_claims_total",
		Help: "Total number of faucet claim attempts",
	}, []string{"result"})

	realtime := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fluxgate_realtime_events_total",
		Help: "Change notifications received over the realtime channel",
	})

	unlocked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fluxgate_lock_unlocked",
		Help: "1 when the wallet's effective lock state is unlocked",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(submissions, polls, claims, realtime, unlocked)

	return &metricsRegistry{
		registry:             r,
		lockSubmissionsTotal: submissions,
		verifyPollsTotal:     polls,
		faucetClaimsTotal:    claims,
		realtimeEventsTotal:  realtime,
		lockUnlocked:         unlocked,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incSubmission(status string) {
	m.lockSubmissionsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incPoll(result string) {
	m.verifyPollsTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) incClaim(result string) {
	m.faucetClaimsTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) incRealtime() {
	m.realtimeEventsTotal.Inc()
}

func (m *metricsRegistry) setUnlocked(unlocked bool) {
	if unlocked {
		m.lockUnlocked.Set(1)
	} else {
		m.lockUnlocked.Set(0)
	}
}
