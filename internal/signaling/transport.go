package signaling

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/auth"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/ratelimit"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/registry"
)

const wsWriteWait = 1 * time.Second

// wsConn is the registry handle for one WebSocket. Send never blocks; frames
// are queued for the write pump, which owns every data write.
type wsConn struct {
	id         string
	remoteAddr string
	ws         *websocket.Conn
	queue      chan []byte

	closeOnce   sync.Once
	closing     chan struct{}
	closeCode   int
	closeReason string
}

func newWSConn(ws *websocket.Conn, remoteAddr string, queueLen int) *wsConn {
	return &wsConn{
		id:         uuid.NewString(),
		remoteAddr: remoteAddr,
		ws:         ws,
		queue:      make(chan []byte, queueLen),
		closing:    make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(frame []byte) error {
	select {
	case <-c.closing:
		return registry.ErrConnClosing
	default:
	}
	select {
	case c.queue <- frame:
		return nil
	default:
		return registry.ErrSendQueueFull
	}
}

func (c *wsConn) Close() { c.closeWith(websocket.CloseNormalClosure, "") }

// closeWith asks the write pump to send a close frame with code and reason
// and tear the connection down. Only the first call has any effect.
func (c *wsConn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		close(c.closing)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ConnectLimiter != nil && !s.cfg.ConnectLimiter.Allow(remoteIP(r.RemoteAddr)) {
		s.cfg.Metrics.Inc(metrics.ConnectRateLimited)
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many connection attempts")
		return
	}
	if !s.origins.Check(r.Header.Get("Origin"), r.Host) {
		s.cfg.Metrics.Inc(metrics.OriginRejected)
		s.log.Debug("signaling upgrade rejected: origin not allowed", "origin", r.Header.Get("Origin"), "remote_addr", r.RemoteAddr)
		writeJSONError(w, http.StatusForbidden, "forbidden", "origin not allowed")
		return
	}
	if err := auth.Authorize(s.cfg.Verifier, r); err != nil {
		s.cfg.Metrics.Inc(metrics.AuthFailures)
		s.log.Debug("signaling upgrade rejected: unauthorized", "remote_addr", r.RemoteAddr, "err", err)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		s.log.Debug("signaling upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	conn := newWSConn(ws, r.RemoteAddr, s.cfg.SendQueueMessages)
	logger := s.log.With("conn_id", conn.id, "remote_addr", conn.remoteAddr)

	if err := s.cfg.Hub.Open(r.Context(), conn); err != nil {
		code, reason := websocket.CloseGoingAway, "server shutting down"
		if errors.Is(err, ErrTooManyPeers) {
			code, reason = websocket.CloseTryAgainLater, "too many peers"
		}
		writeClose(ws, code, reason)
		_ = ws.Close()
		logger.Debug("signaling connection refused", "err", err)
		return
	}
	logger.Info("signaling connection opened")

	go s.writePump(conn)
	s.readPump(conn)
	logger.Info("signaling connection closed")
}

func (s *Server) readPump(c *wsConn) {
	defer func() {
		s.cfg.Hub.Close(c)
		c.Close()
	}()

	rate := int64(s.cfg.MaxMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(s.cfg.Clock, rate, rate)
	idle := s.cfg.IdleTimeout

	c.ws.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(idle))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		msgType, frame, err := c.ws.ReadMessage()
		if err != nil {
			s.logReadError(c, err)
			return
		}
		// The frame has been read in full before the limit applies, so the
		// client still observes the close frame rather than a reset.
		if !limiter.Allow(1) {
			s.cfg.Metrics.Inc(metrics.RateLimited)
			s.log.Warn("signaling connection rate limited", "conn_id", c.id, "remote_addr", c.remoteAddr)
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			c.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))

		if err := s.cfg.Hub.Deliver(c, frame); err != nil {
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (s *Server) writePump(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.Close()
				return
			}
		case <-c.closing:
			writeClose(c.ws, c.closeCode, c.closeReason)
			return
		}
	}
}

func (s *Server) logReadError(c *wsConn, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("signaling message too large", "conn_id", c.id, "max_bytes", s.cfg.MaxMessageBytes)
		c.closeWith(websocket.CloseMessageTooBig, "message too large")
	case isTimeout(err):
		s.log.Debug("signaling connection idle", "conn_id", c.id)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		s.log.Debug("signaling connection closed unexpectedly", "conn_id", c.id, "err", err)
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
