package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/registry"
)

var (
	ErrHubClosed    = errors.New("signaling: hub closed")
	ErrTooManyPeers = errors.New("signaling: too many peers")
)

type HubConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// MaxPeers bounds concurrent connections; 0 means unlimited.
	MaxPeers int
}

// Hub owns the registry. Transport goroutines report connection lifecycle
// events and inbound frames over unbuffered channels and Run handles each
// one to completion, so events from a single connection are processed in the
// order they were reported and no event observes another half-applied.
type Hub struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	maxPeers int

	peers  *registry.Registry
	router *Router

	register   chan registration
	unregister chan registry.Conn
	inbound    chan inboundFrame
	queries    chan chan []PeerInfo
	done       chan struct{}
}

type registration struct {
	conn   registry.Conn
	result chan error
}

type inboundFrame struct {
	conn  registry.Conn
	frame []byte
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	peers := registry.New()
	return &Hub{
		log:        logger,
		metrics:    cfg.Metrics,
		maxPeers:   cfg.MaxPeers,
		peers:      peers,
		router:     NewRouter(peers, logger, cfg.Metrics),
		register:   make(chan registration),
		unregister: make(chan registry.Conn),
		inbound:    make(chan inboundFrame),
		queries:    make(chan chan []PeerInfo),
		done:       make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled, then closes every remaining
// connection. Run must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			conns := h.peers.Connections()
			for _, c := range conns {
				c.Close()
			}
			h.log.Info("signaling hub stopped", "connections_closed", len(conns))
			return

		case reg := <-h.register:
			reg.result <- h.open(reg.conn)

		case conn := <-h.unregister:
			h.close(conn)

		case in := <-h.inbound:
			if _, ok := h.peers.Get(in.conn); !ok {
				continue
			}
			h.router.HandleMessage(in.conn, in.frame)

		case reply := <-h.queries:
			reply <- h.router.Broadcaster().PeerList()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Open adds conn as an unregistered connection. It fails with
// ErrTooManyPeers when the connection limit is reached.
func (h *Hub) Open(ctx context.Context, conn registry.Conn) error {
	result := make(chan error, 1)
	select {
	case h.register <- registration{conn: conn, result: result}:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-result
}

// Deliver hands an inbound frame from conn to the router.
func (h *Hub) Deliver(conn registry.Conn, frame []byte) error {
	select {
	case h.inbound <- inboundFrame{conn: conn, frame: frame}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Close reports that conn's transport has closed.
func (h *Hub) Close(conn registry.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Peers returns the current public peer list.
func (h *Hub) Peers(ctx context.Context) ([]PeerInfo, error) {
	reply := make(chan []PeerInfo, 1)
	select {
	case h.queries <- reply:
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-reply, nil
}

func (h *Hub) open(conn registry.Conn) error {
	if h.maxPeers > 0 && h.peers.Len() >= h.maxPeers {
		h.metrics.Inc(metrics.PeerLimitRejections)
		h.log.Warn("signaling connection rejected: peer limit reached", "conn_id", conn.ID(), "max_peers", h.maxPeers)
		return ErrTooManyPeers
	}
	if !h.peers.Add(conn) {
		return nil
	}
	h.metrics.Inc(metrics.ConnectionsOpened)
	h.metrics.SetGauge(metrics.GaugeConnections, int64(h.peers.Len()))
	return nil
}

func (h *Hub) close(conn registry.Conn) {
	entry, ok := h.peers.Remove(conn)
	if !ok {
		return
	}
	h.metrics.Inc(metrics.ConnectionsClosed)
	h.metrics.SetGauge(metrics.GaugeConnections, int64(h.peers.Len()))

	if !entry.Registered {
		return
	}
	h.metrics.SetGauge(metrics.GaugeRegisteredPeers, int64(h.peers.RegisteredLen()))
	h.log.Info("peer disconnected", "conn_id", conn.ID(), "peer_id", entry.Metadata.ID)
	h.router.Broadcaster().BroadcastPeerList()
}
