package signaling

import (
	"errors"
	"testing"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{
			name:  "new",
			frame: `{"type":"new","data":{"id":"a","device_name":"Pixel","username":"ann","user_agent":"ua"}}`,
			want:  NewMessage{Peer: PeerInfo{ID: "a", DeviceName: "Pixel", Username: "ann", UserAgent: "ua"}},
		},
		{name: "new without data", frame: `{"type":"new"}`, want: NewMessage{}},
		{name: "leave", frame: `{"type":"leave","data":{}}`, want: LeaveMessage{}},
		{name: "bye", frame: `{"type":"bye","data":{"session_id":"a-b"}}`, want: ByeMessage{SessionID: "a-b"}},
		{name: "bye without session", frame: `{"type":"bye","data":{}}`, want: ByeMessage{}},
		{name: "bye with numeric session", frame: `{"type":"bye","data":{"session_id":7}}`, want: ByeMessage{}},
		{name: "unknown", frame: `{"type":"ping"}`, want: UnknownMessage{Kind: "ping"}},
		{name: "missing type", frame: `{"data":{}}`, want: UnknownMessage{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.frame))
			if err != nil {
				t.Fatalf("ParseInbound: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseInbound_RelayKeepsRawFrame(t *testing.T) {
	frame := []byte(`{"type":"offer","data":{"to":"b","from":"a","description":{"sdp":"v=0"}},"extra":1}`)
	msg, err := ParseInbound(frame)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	relay, ok := msg.(RelayMessage)
	if !ok {
		t.Fatalf("got %T, want RelayMessage", msg)
	}
	if relay.Kind != MessageTypeOffer || relay.To != "b" {
		t.Fatalf("kind=%q to=%q", relay.Kind, relay.To)
	}
	if string(relay.Raw) != string(frame) {
		t.Fatalf("raw=%s, want original frame", relay.Raw)
	}
}

func TestParseInbound_RelayTargetTolerance(t *testing.T) {
	for _, frame := range []string{
		`{"type":"candidate"}`,
		`{"type":"candidate","data":null}`,
		`{"type":"candidate","data":"b"}`,
		`{"type":"candidate","data":{"to":42}}`,
		`{"type":"candidate","data":{"to":""}}`,
	} {
		msg, err := ParseInbound([]byte(frame))
		if err != nil {
			t.Fatalf("%s: %v", frame, err)
		}
		if to := msg.(RelayMessage).To; to != "" {
			t.Fatalf("%s: to=%q, want empty", frame, to)
		}
	}
}

func TestParseInbound_Malformed(t *testing.T) {
	for _, frame := range []string{
		``,
		`not json`,
		`[1,2]`,
		`{"type":5}`,
		`{"type":"new","data":"a"}`,
		`{"type":"new","data":{"id":1}}`,
	} {
		if _, err := ParseInbound([]byte(frame)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%q: err=%v, want %v", frame, err, ErrMalformedMessage)
		}
	}
}

func TestSplitSessionID(t *testing.T) {
	tests := []struct {
		in            string
		first, second string
		ok            bool
	}{
		{in: "a-b", first: "a", second: "b", ok: true},
		{in: "a-b-c", first: "a", second: "b", ok: true},
		{in: "a-", first: "a", second: "", ok: true},
		{in: "a", first: "a", ok: false},
	}
	for _, tt := range tests {
		first, second, ok := SplitSessionID(tt.in)
		if first != tt.first || second != tt.second || ok != tt.ok {
			t.Fatalf("SplitSessionID(%q)=(%q,%q,%v), want (%q,%q,%v)", tt.in, first, second, ok, tt.first, tt.second, tt.ok)
		}
	}
}

func TestEncodePeers_EmptyListIsArray(t *testing.T) {
	if got := string(EncodePeers(nil)); got != `{"type":"peers","data":[]}` {
		t.Fatalf("EncodePeers(nil)=%s", got)
	}
}

func TestEncodeError(t *testing.T) {
	got := string(EncodeError(errPeerNotFound("z")))
	want := `{"type":"error","data":{"reason":"Peer z not found.","requestMsg":"bye"}}`
	if got != want {
		t.Fatalf("EncodeError=%s, want %s", got, want)
	}
	if got := string(EncodeError(errMalformed())); got != `{"type":"error","data":{"reason":"Unable to parse message"}}` {
		t.Fatalf("EncodeError(malformed)=%s", got)
	}
}
