// Package signaling relays WebRTC session setup messages between browser
// peers over WebSocket.
//
// Clients register with a "new" message, receive the live peer list as
// "peers" broadcasts, exchange offer/answer/candidate payloads addressed by
// peer id, and end calls with "bye". Payloads are forwarded verbatim and
// never interpreted.
//
// A single Hub goroutine owns the connection registry. Transport goroutines
// report connection open and close events and inbound frames to it, and it
// routes, registers and broadcasts one event at a time.
package signaling
