package transport

import "sync/atomic"

// MetricsSnapshot is a point-in-time read of a ReplyServer or PubServer's
// counters.
type MetricsSnapshot struct {
	ActiveConnections int64
	RequestsHandled   int64
	EventsPublished   int64
	EventsDropped     int64 // subscriber buffer was full
}

// Metrics are the atomic counters a ReplyServer or PubServer updates on
// its hot path, read through the servers' Metrics methods. They are
// not exported to Prometheus; this type has no Prometheus dependency of
// its own so transport stays usable without it.
type Metrics struct {
	activeConnections atomic.Int64
	requestsHandled    atomic.Int64
	eventsPublished    atomic.Int64
	eventsDropped      atomic.Int64
}

func (m *Metrics) recordConnect(delta int64) {
	m.activeConnections.Add(delta)
}

func (m *Metrics) recordRequest() {
	m.requestsHandled.Add(1)
}

func (m *Metrics) recordPublish(delta int64) {
	m.eventsPublished.Add(delta)
}

func (m *Metrics) recordDrop() {
	m.eventsDropped.Add(1)
}

// Snapshot returns a consistent-enough read of the counters for
// logging or a Prometheus gauge callback.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ActiveConnections: m.activeConnections.Load(),
		RequestsHandled:   m.requestsHandled.Load(),
		EventsPublished:   m.eventsPublished.Load(),
		EventsDropped:     m.eventsDropped.Load(),
	}
}
