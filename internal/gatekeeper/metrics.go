package gatekeeper

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Redirects   *prometheus.CounterVec
	Evaluations *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Name:      "redirects_total",
			Help:      "Screens replaced by the gatekeeper, by destination.",
		}, []string{"destination"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Name:      "evaluations_total",
			Help:      "Gatekeeper evaluations, by session state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.Redirects, m.Evaluations)
	}
	return m
}
