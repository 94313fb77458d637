// Package metrics holds the relay's in-process event counters and gauges.
package metrics

import "sync"

// Event counter names.
const (
	ConnectionsOpened      = "connections_opened"
	ConnectionsClosed      = "connections_closed"
	PeersRegistered        = "peers_registered"
	PeersReregistered      = "peers_reregistered"
	MessagesRouted         = "messages_routed"
	MessagesUnroutable     = "messages_unroutable"
	MalformedMessages      = "malformed_messages"
	UnknownMessageTypes    = "unknown_message_types"
	ErrorsSent             = "errors_sent"
	PeerListBroadcasts     = "peer_list_broadcasts"
	ByesSent               = "byes_sent"
	SlowConsumerDisconnect = "slow_consumer_disconnects"
	RateLimited            = "rate_limited"
	ConnectRateLimited     = "connect_rate_limited"
	AuthFailures           = "auth_failures"
	OriginRejected         = "origin_rejected"
	PeerLimitRejections    = "peer_limit_rejections"
	TLSReloads             = "tls_reloads"
	TLSReloadFailures      = "tls_reload_failures"
)

// Gauge names.
const (
	GaugeConnections     = "connections"
	GaugeRegisteredPeers = "registered_peers"
)

// Metrics is a concurrency-safe registry of named counters and gauges. A nil
// *Metrics discards every update.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]uint64
	gauges   map[string]int64
}

func New() *Metrics {
	return &Metrics{
		counters: make(map[string]uint64),
		gauges:   make(map[string]int64),
	}
}

func (m *Metrics) Inc(name string) { m.Add(name, 1) }

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// SetGauge records the current value of a gauge.
func (m *Metrics) SetGauge(name string, v int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.gauges[name] = v
	m.mu.Unlock()
}

func (m *Metrics) Gauge(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// GaugeSnapshot returns a copy of every gauge.
func (m *Metrics) GaugeSnapshot() map[string]int64 {
	out := make(map[string]int64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.gauges {
		out[k] = v
	}
	return out
}
