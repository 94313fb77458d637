package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "VERTEX_ICE_SERVERS_JSON"

	envStunURLs       = "VERTEX_STUN_URLS"
	envTurnURLs       = "VERTEX_TURN_URLS"
	envTurnUsername   = "VERTEX_TURN_USERNAME"
	envTurnCredential = "VERTEX_TURN_CREDENTIAL"

	envTURNRESTSharedSecret   = "VERTEX_TURN_REST_SHARED_SECRET"
	envTURNRESTTTL            = "VERTEX_TURN_REST_TTL"
	envTURNRESTUsernamePrefix = "VERTEX_TURN_REST_USERNAME_PREFIX"
)

const (
	DefaultTURNRESTTTL            = time.Hour
	DefaultTURNRESTUsernamePrefix = "vertex"
)

// TURNRESTConfig enables per-request TURN credentials signed with a secret
// shared with the TURN server (coturn's use-auth-secret). It is disabled when
// SharedSecret is empty.
type TURNRESTConfig struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string
}

func (c TURNRESTConfig) Enabled() bool { return c.SharedSecret != "" }

func (c TURNRESTConfig) validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.TTL < time.Second {
		return fmt.Errorf("%s/--turn-rest-ttl must be >= 1s", envTURNRESTTTL)
	}
	if c.UsernamePrefix == "" || strings.Contains(c.UsernamePrefix, ":") {
		return fmt.Errorf("%s/--turn-rest-username-prefix must be non-empty and must not contain ':'", envTURNRESTUsernamePrefix)
	}
	return nil
}

// parseICEServersFromValues prefers the JSON form; the STUN/TURN convenience
// values are consulted only when it is empty. With issued set, TURN entries
// may omit static credentials because they are signed per request.
func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string, issued bool) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		servers, err := parseICEServersJSON(raw, issued)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}
	return parseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential, issued)
}

// iceServerJSON accepts "urls" as either a string or a list, as browsers do.
type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("urls must be a string or an array of strings")
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses a JSON array of RTCIceServer-shaped objects.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	return parseICEServersJSON(raw, false)
}

func parseICEServersJSON(raw string, issued bool) ([]webrtc.ICEServer, error) {
	var in []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(in))
	for i, s := range in {
		server := webrtc.ICEServer{
			URLs:     splitCommaSeparated(strings.Join(s.URLs, ",")),
			Username: strings.TrimSpace(s.Username),
		}
		if cred := strings.TrimSpace(s.Credential); cred != "" {
			server.Credential = cred
		}
		if err := validateICEServer(server, issued); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// ParseICEServersFromConvenienceEnv builds at most one STUN and one TURN
// entry from comma-separated URL lists.
func ParseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	return parseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential, false)
}

func parseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string, issued bool) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		server := webrtc.ICEServer{URLs: urls}
		if err := validateICEServer(server, false); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		username, credential := strings.TrimSpace(turnUsername), strings.TrimSpace(turnCredential)
		if !issued && (username == "" || credential == "") {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		server := webrtc.ICEServer{
			URLs:           urls,
			Username:       username,
			CredentialType: webrtc.ICECredentialTypePassword,
		}
		if credential != "" {
			server.Credential = credential
		}
		if err := validateICEServer(server, issued); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func splitCommaSeparated(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateICEServer checks URL schemes. TURN entries need a username and a
// credential unless issued is set.
func validateICEServer(server webrtc.ICEServer, issued bool) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCredentials := false
	for _, url := range server.URLs {
		scheme, _, ok := strings.Cut(url, ":")
		if !ok {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
		switch strings.ToLower(scheme) {
		case "stun", "stuns":
		case "turn", "turns":
			needsCredentials = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
	}
	if !needsCredentials || issued {
		return nil
	}

	if server.Username == "" {
		return errors.New("turn urls require username")
	}
	if cred, ok := server.Credential.(string); !ok || cred == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}
