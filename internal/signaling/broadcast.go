package signaling

import (
	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/registry"
)

// PeerListBroadcaster pushes the current peer list to every connection.
type PeerListBroadcaster struct {
	peers *registry.Registry
	out   outbox
}

// PeerList returns the public view of the registered peers in registration
// order.
func (b *PeerListBroadcaster) PeerList() []PeerInfo {
	snap := b.peers.Snapshot()
	list := make([]PeerInfo, 0, len(snap))
	for _, e := range snap {
		list = append(list, peerInfoFromMetadata(e.Metadata))
	}
	return list
}

// BroadcastPeerList serializes the peer list once and sends the same bytes to
// every connection, registered or not. A failed send only affects that
// connection. It returns the number of connections the frame was queued for.
func (b *PeerListBroadcaster) BroadcastPeerList() int {
	frame := EncodePeers(b.PeerList())
	b.out.metrics.Inc(metrics.PeerListBroadcasts)

	delivered := 0
	for _, conn := range b.peers.Connections() {
		if b.out.send(conn, frame) {
			delivered++
		}
	}
	return delivered
}

func peerInfoFromMetadata(md registry.Metadata) PeerInfo {
	return PeerInfo{
		ID:         md.ID,
		DeviceName: md.DeviceName,
		Username:   md.Username,
		UserAgent:  md.UserAgent,
	}
}

func metadataFromPeerInfo(p PeerInfo) registry.Metadata {
	return registry.Metadata{
		ID:         p.ID,
		DeviceName: p.DeviceName,
		Username:   p.Username,
		UserAgent:  p.UserAgent,
	}
}
