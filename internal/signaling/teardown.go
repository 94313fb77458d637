package signaling

import (
	"log/slog"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/registry"
)

// SessionTeardown handles "bye". It reads the registry but never changes it.
type SessionTeardown struct {
	peers *registry.Registry
	out   outbox
	log   *slog.Logger
}

// Handle notifies both participants of session "<id1>-<id2>". Each half is
// resolved and notified in turn; an unknown participant stops processing
// with an error to the sender, and a notification already sent for the first
// half is not withdrawn.
func (t *SessionTeardown) Handle(conn registry.Conn, m ByeMessage) {
	if m.SessionID == "" {
		t.out.sendError(conn, errMissingSessionID())
		return
	}

	id1, id2, complete := SplitSessionID(m.SessionID)
	if !t.notify(conn, id1, m.SessionID) {
		return
	}
	if !complete {
		t.out.sendError(conn, errIncompleteSessionID())
		return
	}
	t.notify(conn, id2, m.SessionID)
}

// notify sends the bye for one participant, or reports it unknown to the
// sender.
func (t *SessionTeardown) notify(sender registry.Conn, id, sessionID string) bool {
	target, ok := t.peers.FindByID(id)
	if !ok {
		t.out.sendError(sender, errPeerNotFound(id))
		return false
	}
	if t.out.send(target.Conn, EncodeBye(id, sessionID)) {
		t.out.metrics.Inc(metrics.ByesSent)
	}
	t.log.Debug("bye sent", "conn_id", sender.ID(), "peer_id", id, "session_id", sessionID)
	return true
}
