// Package metrics exposes Prometheus collectors for the device client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "devscreen").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "devscreen",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the client collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	dialAttempts   prometheus.Counter
	dialFailures   prometheus.Counter
	disconnects    prometheus.Counter
	reconnectDelay prometheus.Histogram
	messages       prometheus.Counter
	messageBytes   prometheus.Histogram
	pixels         *prometheus.CounterVec
	touchesSent    prometheus.Counter
	state          prometheus.Gauge
}

// New registers the client collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		dialAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "dial_attempts_total",
			Help:        "Total number of device connection attempts",
			ConstLabels: config.ConstLabels,
		}),

		dialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "dial_failures_total",
			Help:        "Total number of failed device connection attempts",
			ConstLabels: config.ConstLabels,
		}),

		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "disconnects_total",
			Help:        "Total number of established connections that closed",
			ConstLabels: config.ConstLabels,
		}),

		reconnectDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "reconnect_delay_seconds",
			Help:        "Randomized delay scheduled before each reconnect",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "update_messages_total",
			Help:        "Total number of pixel update messages decoded",
			ConstLabels: config.ConstLabels,
		}),

		messageBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "update_message_bytes",
			Help:        "Size of pixel update messages in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(8, 4, 8), // 8B to 128KB
		}),

		pixels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "pixel_updates_total",
			Help:        "Pixel update records by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		touchesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "touches_sent_total",
			Help:        "Total number of touch commands written to the device",
			ConstLabels: config.ConstLabels,
		}),

		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connection_state",
			Help:        "Current connection state (0 idle, 1 connecting, 2 connected, 3 disconnected)",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) RecordDial(err error) {
	if m == nil {
		return
	}
	m.dialAttempts.Inc()
	if err != nil {
		m.dialFailures.Inc()
	}
}

func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}

func (m *Metrics) RecordReconnectDelay(seconds float64) {
	if m == nil {
		return
	}
	m.reconnectDelay.Observe(seconds)
}

// RecordMessage records one decoded update message.
func (m *Metrics) RecordMessage(size, applied, dropped int) {
	if m == nil {
		return
	}
	m.messages.Inc()
	m.messageBytes.Observe(float64(size))
	m.pixels.WithLabelValues("applied").Add(float64(applied))
	m.pixels.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) RecordTouch() {
	if m == nil {
		return
	}
	m.touchesSent.Inc()
}

// SetState records the numeric connection state.
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}
