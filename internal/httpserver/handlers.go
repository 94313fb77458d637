package httpserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/turnrest"
)

func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, Banner)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	ready := s.ready.Load()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": ready})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.build)
}

type iceResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// handleICE serves the configured ICE servers. With TURN REST enabled every
// response carries freshly signed credentials on the TURN entries.
func (s *Server) handleICE(w http.ResponseWriter, _ *http.Request) {
	servers := s.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	if s.turn != nil {
		servers = turnrest.Apply(servers, s.turn.Issue())
		w.Header().Set("Cache-Control", "no-store")
	}
	writeJSON(w, http.StatusOK, iceResponse{ICEServers: servers})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
