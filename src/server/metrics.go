package server

import "github.com/prometheus/client_golang/prometheus"

const (
	decisionSession = "session"
	decisionGranted = "granted"
	decisionDenied  = "denied"
)

type gateMetrics struct {
	decisions *prometheus.CounterVec
}

func newGateMetrics(reg prometheus.Registerer) *gateMetrics {
	m := &gateMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webhelp",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "License gate decisions by outcome.",
		}, []string{"decision"}),
	}
	reg.MustRegister(m.decisions)

	for _, d := range []string{decisionSession, decisionGranted, decisionDenied} {
		m.decisions.WithLabelValues(d)
	}

	return m
}

func (m *gateMetrics) observe(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}
