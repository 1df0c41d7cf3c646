package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the realtime collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Channels     prometheus.Gauge
	Identities   prometheus.Gauge
	Handshakes   *prometheus.CounterVec
	Broadcasts   prometheus.Counter
	Deliveries   prometheus.Counter
	SendFailures *prometheus.CounterVec
	Inbound      *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns, sub = "calcsync", "realtime"

	m := &Metrics{
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "channels_open",
			Help: "Channels currently registered.",
		}),
		Identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "identities_connected",
			Help: "Users with at least one registered channel.",
		}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "handshakes_total",
			Help: "Handshake attempts by result.",
		}, []string{"result"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "broadcasts_total",
			Help: "Broadcast calls.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "deliveries_total",
			Help: "Messages enqueued to channels.",
		}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "send_failures_total",
			Help: "Channel send failures by reason; each removes the channel.",
		}, []string{"reason"}),
		Inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "inbound_messages_total",
			Help: "Inbound messages by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.Channels, m.Identities, m.Handshakes, m.Broadcasts, m.Deliveries, m.SendFailures, m.Inbound)
	}
	return m
}

func (m *Metrics) setOccupancy(identities, channels int) {
	if m == nil {
		return
	}
	m.Identities.Set(float64(identities))
	m.Channels.Set(float64(channels))
}

func (m *Metrics) handshake(result string) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) broadcast(delivered int) {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
	m.Deliveries.Add(float64(delivered))
}

func (m *Metrics) sendFailure(reason string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) inbound(outcome string) {
	if m == nil {
		return
	}
	m.Inbound.WithLabelValues(outcome).Inc()
}
