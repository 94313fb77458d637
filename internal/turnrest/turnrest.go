// Package turnrest issues short-lived TURN credentials in the format coturn
// accepts with use-auth-secret:
//
//	username   = <expiry unix seconds>:<prefix>:<nonce>
//	credential = base64(hmac-sha1(shared secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/config"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/ratelimit"
)

var ErrInvalidConfig = errors.New("turnrest: invalid config")

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	prefix string
	clock  ratelimit.Clock
	nonce  func() string
}

func NewIssuer(cfg config.TURNRESTConfig, clock ratelimit.Clock) (*Issuer, error) {
	switch {
	case cfg.SharedSecret == "":
		return nil, fmt.Errorf("%w: shared secret is required", ErrInvalidConfig)
	case cfg.TTL < time.Second:
		return nil, fmt.Errorf("%w: ttl must be at least 1s", ErrInvalidConfig)
	case cfg.UsernamePrefix == "" || strings.Contains(cfg.UsernamePrefix, ":"):
		return nil, fmt.Errorf("%w: username prefix must be non-empty and free of ':'", ErrInvalidConfig)
	}
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	return &Issuer{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTL,
		prefix: cfg.UsernamePrefix,
		clock:  clock,
		nonce:  uuid.NewString,
	}, nil
}

// Issue returns a fresh credential pair valid for the configured TTL.
func (i *Issuer) Issue() Credentials {
	expires := i.clock.Now().UTC().Add(i.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s:%s", expires.Unix(), i.prefix, i.nonce())
	return Credentials{
		Username:   username,
		Credential: sign(i.secret, username),
		Expires:    expires,
	}
}

// Apply returns a copy of servers with creds set on every server that lists
// a turn: or turns: URL. STUN-only servers are left unchanged.
func Apply(servers []webrtc.ICEServer, creds Credentials) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for idx, server := range servers {
		out[idx] = server
		if hasTURNURL(server) {
			out[idx].Username = creds.Username
			out[idx].Credential = creds.Credential
		}
	}
	return out
}

func hasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		url := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			return true
		}
	}
	return false
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
