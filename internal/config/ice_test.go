package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	raw := `[
	  {"urls": ["stun:stun.example.com:3478", " "]},
	  {"urls": "turn:turn.example.com:3478?transport=udp", "username": "user", "credential": "pass"}
	]`

	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len(servers)=%d, want 2", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("stun urls=%#v", got)
	}
	if servers[1].Username != "user" {
		t.Fatalf("username=%q, want %q", servers[1].Username, "user")
	}
	if cred, ok := servers[1].Credential.(string); !ok || cred != "pass" {
		t.Fatalf("credential=%#v, want %q", servers[1].Credential, "pass")
	}
}

func TestParseICEServersJSON_Rejects(t *testing.T) {
	t.Parallel()

	for name, raw := range map[string]string{
		"turn without credentials": `[{"urls": ["turn:turn.example.com"]}]`,
		"unknown scheme":           `[{"urls": ["http://example.com"]}]`,
		"no urls":                  `[{"urls": []}]`,
		"urls wrong type":          `[{"urls": 5}]`,
		"not an array":             `{"urls": "stun:x"}`,
	} {
		if _, err := ParseICEServersJSON(raw); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersFromConvenienceEnv("stun:a.example, stun:b.example", "turn:t.example", "u", "p")
	if err != nil {
		t.Fatalf("ParseICEServersFromConvenienceEnv: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len(servers)=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun urls=%#v, want 2 entries", servers[0].URLs)
	}
	if servers[1].Username != "u" {
		t.Fatalf("turn username=%q, want %q", servers[1].Username, "u")
	}

	if _, err := ParseICEServersFromConvenienceEnv("", "turn:t.example", "u", ""); err == nil {
		t.Fatalf("expected error for TURN without credential")
	} else if !strings.Contains(err.Error(), envTurnCredential) {
		t.Fatalf("error %q does not name %s", err, envTurnCredential)
	}

	servers, err = ParseICEServersFromConvenienceEnv("", "", "", "")
	if err != nil || len(servers) != 0 {
		t.Fatalf("empty input returned %v, %v", servers, err)
	}
}

func TestParseICEServersFromValues_JSONWins(t *testing.T) {
	t.Parallel()

	servers, err := parseICEServersFromValues(`[{"urls":"stun:json.example"}]`, "stun:env.example", "", "", "", false)
	if err != nil {
		t.Fatalf("parseICEServersFromValues: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example" {
		t.Fatalf("servers=%#v, want only the JSON entry", servers)
	}

	_, err = parseICEServersFromValues(`not json`, "", "", "", "", false)
	if err == nil || !strings.Contains(err.Error(), envICEServersJSON) {
		t.Fatalf("err=%v, want error naming %s", err, envICEServersJSON)
	}
}

func TestLoad_TURNREST(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envTURNRESTSharedSecret: "s3cret",
		envTurnURLs:             "turn:turn.example.com:3478",
	}), []string{"--turn-rest-ttl", "10m"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := TURNRESTConfig{SharedSecret: "s3cret", TTL: 10 * time.Minute, UsernamePrefix: DefaultTURNRESTUsernamePrefix}
	if cfg.TURNREST != want {
		t.Fatalf("TURNREST=%+v, want %+v", cfg.TURNREST, want)
	}
	if !cfg.TURNREST.Enabled() {
		t.Fatalf("TURNREST not enabled")
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("ICEServers=%#v, want one TURN entry", cfg.ICEServers)
	}
	if turn := cfg.ICEServers[0]; turn.Username != "" || turn.Credential != nil {
		t.Fatalf("turn entry=%+v, want no static credentials", turn)
	}
}

func TestLoad_TURNURLsWithoutCredentials(t *testing.T) {
	_, err := load(lookupMap(map[string]string{
		envTurnURLs: "turn:turn.example.com:3478",
	}), nil)
	if err == nil || !strings.Contains(err.Error(), envTurnCredential) {
		t.Fatalf("err=%v, want error naming %s", err, envTurnCredential)
	}
}

func TestLoad_TURNRESTAllowsJSONWithoutCredentials(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envTURNRESTSharedSecret: "s3cret",
		envICEServersJSON:       `[{"urls":"turns:turn.example.com:5349"}]`,
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].Username != "" {
		t.Fatalf("ICEServers=%#v, want one TURN entry without username", cfg.ICEServers)
	}
}

func TestLoad_TURNRESTInvalid(t *testing.T) {
	for _, env := range []map[string]string{
		{envTURNRESTSharedSecret: "s", envTURNRESTTTL: "500ms"},
		{envTURNRESTSharedSecret: "s", envTURNRESTUsernamePrefix: "a:b"},
	} {
		if _, err := load(lookupMap(env), nil); err == nil {
			t.Fatalf("load(%v) succeeded, want error", env)
		}
	}
}
