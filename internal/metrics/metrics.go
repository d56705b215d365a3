// Package metrics carries the counters behind spec.md §6's
// "$SYS/broker/..." republishing path (SPEC_FULL.md's expansion): the
// republishing goroutine itself is out of core scope, but the counters
// it would read from are a thin, genuinely useful surface in their own
// right (scrapeable by Prometheus directly), so they are built without
// the republish loop.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	BytesReceived   prometheus.Counter
	BytesSent       prometheus.Counter
	MessagesIn      prometheus.Counter
	MessagesOut     prometheus.Counter
	ConnectionsOpen prometheus.Gauge
	ClientsOnline   prometheus.Gauge
	Subscriptions   prometheus.Gauge
	RetainedCount   prometheus.Gauge
}

// New registers every counter/gauge against reg and returns the handles
// used to update them. Passing prometheus.NewRegistry() keeps tests free
// of the global default registry's cross-test state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemq", Name: "bytes_received_total",
			Help: "Total bytes read from client connections.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemq", Name: "bytes_sent_total",
			Help: "Total bytes written to client connections.",
		}),
		MessagesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemq", Name: "messages_received_total",
			Help: "Total PUBLISH packets received from clients.",
		}),
		MessagesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemq", Name: "messages_sent_total",
			Help: "Total PUBLISH packets forwarded to clients.",
		}),
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemq", Name: "connections_open",
			Help: "Currently open transport connections, across all listeners.",
		}),
		ClientsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemq", Name: "clients_online",
			Help: "Clients with a live (non-offline-queued) session.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemq", Name: "subscriptions",
			Help: "Active subscription filters across all clients.",
		}),
		RetainedCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemq", Name: "retained_messages",
			Help: "Retained messages currently held.",
		}),
	}

	reg.MustRegister(
		m.BytesReceived, m.BytesSent,
		m.MessagesIn, m.MessagesOut,
		m.ConnectionsOpen, m.ClientsOnline,
		m.Subscriptions, m.RetainedCount,
	)

	return m
}
