package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/config"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestIssuer(t *testing.T, ttl time.Duration, now time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(config.TURNRESTConfig{SharedSecret: "shared-secret", TTL: ttl, UsernamePrefix: "vertex"}, fixedClock{now: now})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	i.nonce = func() string { return "nonce123" }
	return i
}

func TestIssue_DeterministicWithFixedTime(t *testing.T) {
	i := newTestIssuer(t, time.Hour, time.Unix(1_700_000_000, 0))

	creds := i.Issue()

	if got, want := creds.Expires.Unix(), int64(1_700_003_600); got != want {
		t.Fatalf("Expires: got %d, want %d", got, want)
	}
	wantUsername := "1700003600:vertex:nonce123"
	if creds.Username != wantUsername {
		t.Fatalf("Username: got %q, want %q", creds.Username, wantUsername)
	}
	if want := expectedCredential(t, []byte("shared-secret"), wantUsername); creds.Credential != want {
		t.Fatalf("Credential: got %q, want %q", creds.Credential, want)
	}
}

func TestIssue_CredentialIsBase64HMACSHA1(t *testing.T) {
	i := newTestIssuer(t, time.Second, time.Unix(0, 0))

	creds := i.Issue()
	decoded, err := base64.StdEncoding.DecodeString(creds.Credential)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	if len(decoded) != sha1.Size {
		t.Fatalf("decoded length: got %d, want %d", len(decoded), sha1.Size)
	}
}

func TestIssue_FreshNoncePerCall(t *testing.T) {
	i, err := NewIssuer(config.TURNRESTConfig{SharedSecret: "s", TTL: time.Minute, UsernamePrefix: "p"}, nil)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if a, b := i.Issue(), i.Issue(); a.Username == b.Username {
		t.Fatalf("two issues share username %q", a.Username)
	}
}

func TestNewIssuer_Invalid(t *testing.T) {
	for _, cfg := range []config.TURNRESTConfig{
		{TTL: time.Hour, UsernamePrefix: "p"},
		{SharedSecret: "s", TTL: time.Millisecond, UsernamePrefix: "p"},
		{SharedSecret: "s", TTL: time.Hour, UsernamePrefix: "a:b"},
	} {
		if _, err := NewIssuer(cfg, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("NewIssuer(%+v) err=%v, want %v", cfg, err, ErrInvalidConfig)
		}
	}
}

func TestApply_OnlyTURNServers(t *testing.T) {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"TURNS:turn.example.com:5349"}},
	}
	creds := Credentials{Username: "u", Credential: "c"}

	got := Apply(servers, creds)

	if got[0].Username != "" || got[0].Credential != nil {
		t.Fatalf("stun server got credentials: %+v", got[0])
	}
	if got[1].Username != "u" || got[1].Credential != "c" {
		t.Fatalf("turn server=%+v", got[1])
	}
	if servers[1].Username != "" {
		t.Fatalf("Apply modified its input")
	}
}

func expectedCredential(t *testing.T, sharedSecret []byte, username string) string {
	t.Helper()
	mac := hmac.New(sha1.New, sharedSecret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
