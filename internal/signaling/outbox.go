package signaling

import (
	"errors"
	"log/slog"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/registry"
)

// outbox hands serialized frames to connection writers. A connection whose
// queue is full is closed; its removal from the registry arrives later as an
// ordinary close event. Frames for a connection that is already closing are
// dropped.
type outbox struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

func (o outbox) send(conn registry.Conn, frame []byte) bool {
	err := conn.Send(frame)
	switch {
	case err == nil:
		return true
	case errors.Is(err, registry.ErrSendQueueFull):
		o.metrics.Inc(metrics.SlowConsumerDisconnect)
		o.log.Warn("signaling send queue full; closing connection", "conn_id", conn.ID())
		conn.Close()
	default:
		o.log.Debug("signaling frame dropped", "conn_id", conn.ID(), "err", err)
	}
	return false
}

func (o outbox) sendError(conn registry.Conn, perr *ProtocolError) {
	o.metrics.Inc(metrics.ErrorsSent)
	o.log.Debug("signaling request rejected", "conn_id", conn.ID(), "request", perr.Request, "reason", perr.Reason)
	o.send(conn, EncodeError(perr))
}
