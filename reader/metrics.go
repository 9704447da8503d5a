package reader

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts footer parses by result: ok, retried (ok after re-reading
// a larger tail) or error.
type Metrics struct {
	FooterParses *prometheus.CounterVec
}

// NewMetrics creates and registers the reader metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	footerParses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pqprefetch_footer_parses_total",
		Help: "Footer parses by result",
	}, []string{"result"})

	reg.MustRegister(footerParses)

	return &Metrics{FooterParses: footerParses}
}

func (m *Metrics) parsed(result string) {
	if m == nil {
		return
	}
	m.FooterParses.WithLabelValues(result).Inc()
}
