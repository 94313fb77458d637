package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/auth"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/config"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/origin"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/ratelimit"
)

type Config struct {
	Hub     *Hub
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Path is the WebSocket endpoint, config.DefaultWSPath when empty.
	Path string

	AllowedOrigins []string
	// Verifier checks the credential presented on upgrade; nil admits
	// everyone.
	Verifier auth.Verifier

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueMessages    int

	// ConnectLimiter, when set, bounds upgrade attempts per remote IP.
	ConnectLimiter *ratelimit.KeyedLimiter

	Clock ratelimit.Clock
}

// Server is the signaling WebSocket endpoint. Each accepted connection gets
// a read pump feeding the hub and a write pump draining its send queue.
type Server struct {
	cfg      Config
	log      *slog.Logger
	origins  origin.Policy
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultWSPath
	}
	if cfg.Verifier == nil {
		cfg.Verifier = auth.Anonymous{}
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultSignalingWSIdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout * 9 / 10
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = config.DefaultMaxSignalingMessagesPerSecond
	}
	if cfg.SendQueueMessages <= 0 {
		cfg.SendQueueMessages = config.DefaultSignalingSendQueueMessages
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}

	return &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		origins: origin.NewPolicy(cfg.AllowedOrigins),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The origin policy runs in ServeHTTP before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET "+s.cfg.Path, s)
	mux.HandleFunc("GET /peers", s.handlePeers)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.cfg.Hub.Peers(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "signaling hub is not running")
		return
	}
	if peers == nil {
		peers = []PeerInfo{}
	}
	writeJSON(w, http.StatusOK, peers)
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}
