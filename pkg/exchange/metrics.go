package exchange

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the simulator served. A nil *Metrics is a no-op.
type Metrics struct {
	Requests   *prometheus.CounterVec
	FramesSent prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abx_exchange",
			Name:      "requests_total",
			Help:      "Requests received, by call type.",
		}, []string{"call"}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abx_exchange",
			Name:      "frames_sent_total",
			Help:      "Packet frames written to clients.",
		}),
	}
	reg.MustRegister(m.Requests, m.FramesSent)
	return m
}

func (m *Metrics) request(call string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(call).Inc()
}

func (m *Metrics) frame() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}
