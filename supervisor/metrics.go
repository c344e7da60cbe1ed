package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the supervisor's Prometheus collectors.
type Metrics struct {
	Clients  prometheus.Gauge
	Frames   prometheus.Counter
	Commands *prometheus.CounterVec
	Starts   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with r.
func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wrapperconsole",
			Subsystem: "hub",
			Name:      "clients",
			Help:      "Number of connected console clients.",
		}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wrapperconsole",
			Subsystem: "hub",
			Name:      "frames_sent_total",
			Help:      "Number of event frames written to clients.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wrapperconsole",
			Subsystem: "server",
			Name:      "commands_received_total",
			Help:      "Number of commands received from clients.",
		}, []string{"target"}),
		Starts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wrapperconsole",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process starts.",
		}),
	}
	r.MustRegister(m.Clients, m.Frames, m.Commands, m.Starts)
	return m
}
