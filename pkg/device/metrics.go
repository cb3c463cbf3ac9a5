package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "simsensor"

// Metrics holds the Prometheus instruments of a Device.
type Metrics struct {
	Generated prometheus.Counter
	Sampled   prometheus.Counter
	Evicted   prometheus.Counter
	Sent      prometheus.Counter
	Dropped   prometheus.Counter
	Commands  *prometheus.CounterVec
	Runs      *prometheus.CounterVec
	Buffered  prometheus.Gauge
	Rate      *prometheus.GaugeVec
}

// NewMetrics creates the device metrics and registers them with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Generated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generated_samples_total",
			Help:      "Values produced by the generation clock.",
		}),
		Sampled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampled_total",
			Help:      "Values pushed into the ring buffer by the resampler.",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_total",
			Help:      "Buffered values overwritten before they were sent.",
		}),
		Sent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_total",
			Help:      "Values written to the link.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Values popped by the sender that could not be written.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command lines received, by result.",
		}, []string{"result"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Simulation runs started, by pattern.",
		}, []string{"pattern"}),
		Buffered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_samples",
			Help:      "Values currently held in the ring buffer.",
		}),
		Rate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_rate_hz",
			Help:      "Configured clock rates.",
		}, []string{"clock"}),
	}
}
