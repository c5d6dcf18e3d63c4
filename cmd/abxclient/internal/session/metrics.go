package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters of one client process. A nil *Metrics is a no-op.
type Metrics struct {
	PacketsStreamed  prometheus.Counter
	FramesDropped    prometheus.Counter
	GapsDetected     prometheus.Counter
	PacketsRecovered prometheus.Counter
	GapsUnrecovered  prometheus.Counter
	Sessions         *prometheus.CounterVec
	Duration         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "abx_client", Name: name, Help: help})
	}

	m := &Metrics{
		PacketsStreamed:  counter("packets_streamed_total", "Packets decoded from stream-all responses."),
		FramesDropped:    counter("frames_dropped_total", "Frames that failed to decode."),
		GapsDetected:     counter("gaps_detected_total", "Missing sequences found after streaming."),
		PacketsRecovered: counter("packets_recovered_total", "Missing sequences filled by a resend."),
		GapsUnrecovered:  counter("gaps_unrecoverable_total", "Missing sequences no resend could fill."),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abx_client",
			Name:      "sessions_total",
			Help:      "Sessions run, by final state.",
		}, []string{"state"}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "abx_client",
			Name:      "last_session_duration_seconds",
			Help:      "Wall time of the most recent session.",
		}),
	}
	reg.MustRegister(m.PacketsStreamed, m.FramesDropped, m.GapsDetected, m.PacketsRecovered, m.GapsUnrecovered, m.Sessions, m.Duration)
	return m
}

func (m *Metrics) observe(r *Report) {
	if m == nil {
		return
	}
	m.PacketsStreamed.Add(float64(r.Streamed))
	m.FramesDropped.Add(float64(r.Dropped))
	m.GapsDetected.Add(float64(len(r.Missing)))
	m.PacketsRecovered.Add(float64(len(r.Recovered)))
	m.GapsUnrecovered.Add(float64(len(r.Unrecoverable)))
	m.Sessions.WithLabelValues(r.State.String()).Inc()
	m.Duration.Set(r.Duration.Seconds())
}
