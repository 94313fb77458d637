package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType is the "type" field of every signaling envelope.
type MessageType string

const (
	MessageTypeNew       MessageType = "new"
	MessageTypeOffer     MessageType = "offer"
	MessageTypeAnswer    MessageType = "answer"
	MessageTypeCandidate MessageType = "candidate"
	MessageTypeLeave     MessageType = "leave"
	MessageTypeBye       MessageType = "bye"
	MessageTypePeers     MessageType = "peers"
	MessageTypeError     MessageType = "error"
)

// sessionIDSeparator joins the two peer ids of a session id ("<a>-<b>").
const sessionIDSeparator = "-"

var ErrMalformedMessage = errors.New("signaling: malformed message")

// PeerInfo is the public description of a registered peer, as carried by
// "new" requests and "peers" broadcasts.
type PeerInfo struct {
	ID         string `json:"id"`
	DeviceName string `json:"device_name"`
	Username   string `json:"username"`
	UserAgent  string `json:"user_agent"`
}

// Inbound is a parsed client message. The concrete type is one of
// NewMessage, RelayMessage, LeaveMessage, ByeMessage or UnknownMessage.
type Inbound interface {
	Type() MessageType
}

// NewMessage registers the sending connection as a peer.
type NewMessage struct {
	Peer PeerInfo
}

// RelayMessage is an offer, answer or candidate addressed to another peer.
// Raw is the frame exactly as received; it is forwarded unmodified.
type RelayMessage struct {
	Kind MessageType
	To   string
	Raw  []byte
}

type LeaveMessage struct{}

// ByeMessage ends a call identified by "<id1>-<id2>".
type ByeMessage struct {
	SessionID string
}

// UnknownMessage is a well-formed envelope with an unrecognized type.
type UnknownMessage struct {
	Kind MessageType
}

func (NewMessage) Type() MessageType       { return MessageTypeNew }
func (m RelayMessage) Type() MessageType   { return m.Kind }
func (LeaveMessage) Type() MessageType     { return MessageTypeLeave }
func (ByeMessage) Type() MessageType       { return MessageTypeBye }
func (m UnknownMessage) Type() MessageType { return m.Kind }

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseInbound decodes one text frame. Only frames that are not a JSON object
// with a string "type" fail; a well-formed envelope always yields a message,
// with missing or mistyped fields left empty so the router can answer them.
func ParseInbound(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case MessageTypeNew:
		var peer PeerInfo
		if !isJSONNull(env.Data) {
			if err := json.Unmarshal(env.Data, &peer); err != nil {
				return nil, fmt.Errorf("%w: new: %v", ErrMalformedMessage, err)
			}
		}
		return NewMessage{Peer: peer}, nil

	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate:
		return RelayMessage{Kind: env.Type, To: stringField(env.Data, "to"), Raw: frame}, nil

	case MessageTypeLeave:
		return LeaveMessage{}, nil

	case MessageTypeBye:
		return ByeMessage{SessionID: stringField(env.Data, "session_id")}, nil

	default:
		return UnknownMessage{Kind: env.Type}, nil
	}
}

// stringField returns data[key] when data is an object and the value is a
// string, and "" otherwise.
func stringField(data json.RawMessage, key string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(obj[key], &s); err != nil {
		return ""
	}
	return s
}

func isJSONNull(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	return trimmed == "" || trimmed == "null"
}

// SplitSessionID splits "<id1>-<id2>" on its first two segments; anything
// after a second separator is ignored. ok is false when there is no
// separator, in which case second is empty.
func SplitSessionID(sessionID string) (first, second string, ok bool) {
	parts := strings.SplitN(sessionID, sessionIDSeparator, 3)
	if len(parts) < 2 {
		return parts[0], "", false
	}
	return parts[0], parts[1], true
}

// ProtocolError is a request failure reported back to the sender as an error
// envelope. The connection stays open.
type ProtocolError struct {
	Request MessageType
	Reason  string
}

func (e *ProtocolError) Error() string {
	if e.Request == "" {
		return "signaling: " + e.Reason
	}
	return fmt.Sprintf("signaling: %s: %s", e.Request, e.Reason)
}

func errMissingTarget(kind MessageType) *ProtocolError {
	return &ProtocolError{Request: kind, Reason: "Peer to id not found"}
}

func errMissingSessionID() *ProtocolError {
	return &ProtocolError{Request: MessageTypeBye, Reason: "No session id found"}
}

func errPeerNotFound(id string) *ProtocolError {
	return &ProtocolError{Request: MessageTypeBye, Reason: fmt.Sprintf("Peer %s not found.", id)}
}

func errIncompleteSessionID() *ProtocolError {
	return &ProtocolError{Request: MessageTypeBye, Reason: "Session id does not name a second peer"}
}

func errUnknownType(kind MessageType) *ProtocolError {
	return &ProtocolError{Request: kind, Reason: fmt.Sprintf("Unable to process request, may not be correct type %s", kind)}
}

func errMalformed() *ProtocolError {
	return &ProtocolError{Reason: "Unable to parse message"}
}

type errorData struct {
	Reason     string      `json:"reason"`
	RequestMsg MessageType `json:"requestMsg,omitempty"`
}

type errorEnvelope struct {
	Type MessageType `json:"type"`
	Data errorData   `json:"data"`
}

type byeData struct {
	To        string `json:"to"`
	SessionID string `json:"session_id"`
}

type byeEnvelope struct {
	Type MessageType `json:"type"`
	Data byeData     `json:"data"`
}

type peersEnvelope struct {
	Type MessageType `json:"type"`
	Data []PeerInfo  `json:"data"`
}

// EncodeError renders e as {"type":"error","data":{"reason":...,"requestMsg":...}}.
func EncodeError(e *ProtocolError) []byte {
	b, err := json.Marshal(errorEnvelope{
		Type: MessageTypeError,
		Data: errorData{Reason: e.Reason, RequestMsg: e.Request},
	})
	if err != nil {
		// Only strings are marshalled; this cannot fail.
		panic(err)
	}
	return b
}

// EncodeBye renders the notification for one side of a torn down session.
func EncodeBye(to, sessionID string) []byte {
	b, err := json.Marshal(byeEnvelope{Type: MessageTypeBye, Data: byeData{To: to, SessionID: sessionID}})
	if err != nil {
		panic(err)
	}
	return b
}

// EncodePeers renders {"type":"peers","data":[...]}. An empty list is encoded
// as [] rather than null.
func EncodePeers(peers []PeerInfo) []byte {
	if peers == nil {
		peers = []PeerInfo{}
	}
	b, err := json.Marshal(peersEnvelope{Type: MessageTypePeers, Data: peers})
	if err != nil {
		panic(err)
	}
	return b
}
