package metrics

import "github.com/prometheus/client_golang/prometheus"

// WizardMetrics exposes counters/histograms for booking wizard flows.
type WizardMetrics struct {
	navTotal         *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	analyticsDropped *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

func NewWizardMetrics(reg prometheus.Registerer) *WizardMetrics {
	m := &WizardMetrics{
		navTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractor",
			Subsystem: "wizard",
			Name:      "step_events_total",
			Help:      "Step view and navigation events",
		}, []string{"step", "action"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractor",
			Subsystem: "wizard",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome",
		}, []string{"outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contractor",
			Subsystem: "wizard",
			Name:      "remote_call_seconds",
			Help:      "Latency of booking platform API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		analyticsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractor",
			Subsystem: "analytics",
			Name:      "dropped_events_total",
			Help:      "Analytics events that were not delivered",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contractor",
			Subsystem: "wizard",
			Name:      "active_sessions",
			Help:      "Wizard sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.navTotal, m.submissionsTotal, m.remoteLatency, m.analyticsDropped, m.activeSessions)
	return m
}

func (m *WizardMetrics) ObserveNav(step, action string) {
	if m == nil {
		return
	}
	m.navTotal.WithLabelValues(step, action).Inc()
}

func (m *WizardMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *WizardMetrics) ObserveRemoteCall(operation string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.remoteLatency.WithLabelValues(operation, status).Observe(seconds)
}

func (m *WizardMetrics) ObserveAnalyticsDropped(reason string) {
	if m == nil {
		return
	}
	m.analyticsDropped.WithLabelValues(reason).Inc()
}

func (m *WizardMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
