package signaling

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/registry"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return registry.ErrConnClosing
	}
	if c.full {
		return registry.ErrSendQueueFull
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// take returns and clears the frames received so far.
func (c *fakeConn) take() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type decodedFrame struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeFrame(t *testing.T, frame []byte) decodedFrame {
	t.Helper()
	var f decodedFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		t.Fatalf("decode %s: %v", frame, err)
	}
	return f
}

func decodePeers(t *testing.T, frame []byte) []PeerInfo {
	t.Helper()
	f := decodeFrame(t, frame)
	if f.Type != MessageTypePeers {
		t.Fatalf("type=%q, want %q (frame %s)", f.Type, MessageTypePeers, frame)
	}
	var peers []PeerInfo
	if err := json.Unmarshal(f.Data, &peers); err != nil {
		t.Fatalf("decode peers %s: %v", f.Data, err)
	}
	return peers
}

func decodeError(t *testing.T, frame []byte) errorData {
	t.Helper()
	f := decodeFrame(t, frame)
	if f.Type != MessageTypeError {
		t.Fatalf("type=%q, want %q (frame %s)", f.Type, MessageTypeError, frame)
	}
	var data errorData
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("decode error data %s: %v", f.Data, err)
	}
	return data
}

func decodeBye(t *testing.T, frame []byte) byeData {
	t.Helper()
	f := decodeFrame(t, frame)
	if f.Type != MessageTypeBye {
		t.Fatalf("type=%q, want %q (frame %s)", f.Type, MessageTypeBye, frame)
	}
	var data byeData
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("decode bye data %s: %v", f.Data, err)
	}
	return data
}

func newMessage(id string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type": "new",
		"data": PeerInfo{ID: id, DeviceName: id + "-laptop", Username: id + "-user", UserAgent: "test-agent"},
	})
	return b
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
