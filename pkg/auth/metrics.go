package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeDenied  = "denied"
	outcomeError   = "error"
)

// Metrics counts resolution outcomes by credential kind. A nil *Metrics
// records nothing.
type Metrics struct {
	resolutions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authn",
			Name:      "caller_resolutions_total",
			Help:      "Caller resolutions by credential kind and outcome.",
		}, []string{"credential", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions)
	}
	return m
}

func (m *Metrics) observe(kind CredentialKind, outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind.String(), outcome).Inc()
}
