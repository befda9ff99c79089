package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rickgao/escrow-realtime/internal/connection"
)

// Metrics holds the realtime collectors.
type Metrics struct {
	// ConnectionUp is 1 while a channel has an open socket.
	// Labels: channel
	ConnectionUp *prometheus.GaugeVec

	// ReconnectAttempts counts scheduled reconnects.
	// Labels: channel
	ReconnectAttempts *prometheus.CounterVec

	// ReconnectDelay observes the wait before each reconnect in seconds.
	// Labels: channel
	ReconnectDelay *prometheus.HistogramVec

	// ReconnectsExhausted counts channels that gave up reconnecting.
	// Labels: channel
	ReconnectsExhausted *prometheus.CounterVec

	// FramesReceived counts well-formed inbound frames.
	// Labels: channel, type
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts inbound frames discarded before dispatch.
	// Labels: channel, reason (malformed|missing_type|unknown_type|invalid_payload)
	FramesDropped *prometheus.CounterVec

	// MessagesSent counts outbound messages written to a socket.
	// Labels: channel, type
	MessagesSent *prometheus.CounterVec

	// SendsDropped counts outbound messages discarded while disconnected.
	// Labels: channel
	SendsDropped *prometheus.CounterVec
}

var _ connection.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg. Pass a fresh
// prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "realtime_connected",
				Help: "Whether the channel socket is open (1) or not (0)",
			},
			[]string{"channel"},
		),

		ReconnectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_reconnect_attempts_total",
				Help: "Total number of reconnect attempts scheduled by channel",
			},
			[]string{"channel"},
		),

		ReconnectDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "realtime_reconnect_delay_seconds",
				Help:    "Delay before each reconnect attempt in seconds",
				Buckets: []float64{1, 2, 3, 4, 5, 10, 30},
			},
			[]string{"channel"},
		),

		ReconnectsExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_reconnect_exhausted_total",
				Help: "Total number of times a channel gave up reconnecting",
			},
			[]string{"channel"},
		),

		FramesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_frames_received_total",
				Help: "Total number of inbound frames by channel and type",
			},
			[]string{"channel", "type"},
		),

		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_frames_dropped_total",
				Help: "Total number of inbound frames dropped by channel and reason",
			},
			[]string{"channel", "reason"},
		),

		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_messages_sent_total",
				Help: "Total number of outbound messages by channel and type",
			},
			[]string{"channel", "type"},
		),

		SendsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_sends_dropped_total",
				Help: "Total number of outbound messages dropped while disconnected",
			},
			[]string{"channel"},
		),
	}
}

// Connected implements connection.Observer.
func (m *Metrics) Connected(channel string) {
	m.connectedGauge(channel).Set(1)
}

// Disconnected implements connection.Observer.
func (m *Metrics) Disconnected(channel string) {
	m.connectedGauge(channel).Set(0)
}

func (m *Metrics) connectedGauge(channel string) prometheus.Gauge {
	return m.ConnectionUp.WithLabelValues(channel)
}

// ReconnectScheduled implements connection.Observer.
func (m *Metrics) ReconnectScheduled(channel string, attempt int, delay time.Duration) {
	m.ReconnectAttempts.WithLabelValues(channel).Inc()
	m.ReconnectDelay.WithLabelValues(channel).Observe(delay.Seconds())
}

// ReconnectExhausted implements connection.Observer.
func (m *Metrics) ReconnectExhausted(channel string) {
	m.ReconnectsExhausted.WithLabelValues(channel).Inc()
}

// FrameReceived implements connection.Observer.
func (m *Metrics) FrameReceived(channel string, frame connection.Frame) {
	m.FramesReceived.WithLabelValues(channel, frame.Type).Inc()
}

// FrameDropped implements connection.Observer.
func (m *Metrics) FrameDropped(channel, reason string) {
	m.FramesDropped.WithLabelValues(channel, reason).Inc()
}

// MessageSent implements connection.Observer.
func (m *Metrics) MessageSent(channel, msgType string) {
	m.MessagesSent.WithLabelValues(channel, msgType).Inc()
}

// SendDropped implements connection.Observer.
func (m *Metrics) SendDropped(channel, msgType string) {
	m.SendsDropped.WithLabelValues(channel).Inc()
}
