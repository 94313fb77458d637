package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/auth"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/signaling"
)

const writeWait = 5 * time.Second

var errNoReply = errors.New("no reply before deadline")

// reply is one frame received from the relay.
type reply struct {
	Type signaling.MessageType `json:"type"`
	Data json.RawMessage       `json:"data"`
	Raw  []byte                `json:"-"`
}

type probeClient struct {
	conn *websocket.Conn
}

func dialRelay(ctx context.Context, rawURL, apiKey string) (*probeClient, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	header := http.Header{}
	if apiKey != "" {
		header.Set(auth.HeaderAPIKey, apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect %s: %s", rawURL, resp.Status)
		}
		return nil, fmt.Errorf("connect %s: %w", rawURL, err)
	}
	return &probeClient{conn: conn}, nil
}

func (c *probeClient) register(info signaling.PeerInfo) error {
	return c.send(signaling.MessageTypeNew, info)
}

func (c *probeClient) send(kind signaling.MessageType, data any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(map[string]any{"type": kind, "data": data})
}

// next returns the next frame, or errNoReply once deadline passes.
func (c *probeClient) next(deadline time.Time) (reply, error) {
	_ = c.conn.SetReadDeadline(deadline)
	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return reply{}, errNoReply
		}
		return reply{}, err
	}
	var r reply
	if err := json.Unmarshal(frame, &r); err != nil {
		return reply{}, fmt.Errorf("decode %s: %w", frame, err)
	}
	r.Raw = frame
	return r, nil
}

// collect reads frames until the deadline, skipping peer list broadcasts.
func (c *probeClient) collect(wait time.Duration) ([]reply, error) {
	deadline := time.Now().Add(wait)
	var out []reply
	for {
		r, err := c.next(deadline)
		if errors.Is(err, errNoReply) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if r.Type == signaling.MessageTypePeers {
			continue
		}
		out = append(out, r)
	}
}

func (c *probeClient) Close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.conn.Close()
}
