package signaling

import (
	"errors"
	"log/slog"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/registry"
)

// Router dispatches inbound frames. It is not safe for concurrent use; the
// hub calls it from its run loop.
type Router struct {
	peers       *registry.Registry
	broadcaster *PeerListBroadcaster
	teardown    *SessionTeardown
	out         outbox
	log         *slog.Logger
	metrics     *metrics.Metrics
}

func NewRouter(peers *registry.Registry, logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	out := outbox{log: logger, metrics: m}
	return &Router{
		peers:       peers,
		broadcaster: &PeerListBroadcaster{peers: peers, out: out},
		teardown:    &SessionTeardown{peers: peers, out: out, log: logger},
		out:         out,
		log:         logger,
		metrics:     m,
	}
}

func (r *Router) Broadcaster() *PeerListBroadcaster { return r.broadcaster }

// HandleMessage processes one frame received on conn. Every failure is
// reported to conn alone; other connections are never affected.
func (r *Router) HandleMessage(conn registry.Conn, frame []byte) {
	msg, err := ParseInbound(frame)
	if err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			r.metrics.Inc(metrics.MalformedMessages)
		}
		r.log.Debug("malformed signaling message", "conn_id", conn.ID(), "err", err)
		r.out.sendError(conn, errMalformed())
		return
	}

	switch m := msg.(type) {
	case NewMessage:
		r.handleNew(conn, m)
	case RelayMessage:
		r.handleRelay(conn, m)
	case LeaveMessage:
		// Leaving a call is negotiated peer to peer; the relay keeps the
		// connection registered until the transport closes.
	case ByeMessage:
		r.teardown.Handle(conn, m)
	case UnknownMessage:
		r.metrics.Inc(metrics.UnknownMessageTypes)
		r.out.sendError(conn, errUnknownType(m.Kind))
	}
}

func (r *Router) handleNew(conn registry.Conn, m NewMessage) {
	first, err := r.peers.Register(conn, metadataFromPeerInfo(m.Peer))
	if err != nil {
		// The connection closed before its frame was processed.
		r.log.Debug("dropping registration for closed connection", "conn_id", conn.ID())
		return
	}

	if first {
		r.metrics.Inc(metrics.PeersRegistered)
		r.log.Info("peer registered", "conn_id", conn.ID(), "peer_id", m.Peer.ID, "device_name", m.Peer.DeviceName)
	} else {
		r.metrics.Inc(metrics.PeersReregistered)
		r.log.Info("peer re-registered", "conn_id", conn.ID(), "peer_id", m.Peer.ID)
	}
	if existing, ok := r.peers.FindByID(m.Peer.ID); ok && existing.Conn != conn {
		r.log.Warn("peer id already registered by another connection; lookups resolve to the earlier one",
			"conn_id", conn.ID(), "peer_id", m.Peer.ID, "owner_conn_id", existing.Conn.ID())
	}
	r.metrics.SetGauge(metrics.GaugeRegisteredPeers, int64(r.peers.RegisteredLen()))

	r.broadcaster.BroadcastPeerList()
}

func (r *Router) handleRelay(conn registry.Conn, m RelayMessage) {
	if m.To == "" {
		r.out.sendError(conn, errMissingTarget(m.Kind))
		return
	}

	target, ok := r.peers.FindByID(m.To)
	if !ok {
		r.metrics.Inc(metrics.MessagesUnroutable)
		r.log.Debug("no peer for signaling message", "conn_id", conn.ID(), "type", m.Kind, "peer_id", m.To)
		return
	}
	if r.out.send(target.Conn, m.Raw) {
		r.metrics.Inc(metrics.MessagesRouted)
	}
}
