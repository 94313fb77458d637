// Package httpserver hosts the relay's plain HTTP surface: the banner,
// health and version probes, and the ICE server list handed to browsers.
// The signaling WebSocket and /metrics are mounted on Mux by the binary.
package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/config"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/origin"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/turnrest"
)

// Banner is the body served at "/".
const Banner = "WebSocket Server - Vertex"

type BuildInfo struct {
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

type Server struct {
	log     *slog.Logger
	cfg     config.Config
	build   BuildInfo
	origins origin.Policy
	turn    *turnrest.Issuer

	ready atomic.Bool

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg config.Config, logger *slog.Logger, build BuildInfo) *Server {
	s := &Server{
		log:     logger,
		cfg:     cfg,
		build:   build,
		origins: origin.NewPolicy(cfg.AllowedOrigins),
		mux:     http.NewServeMux(),
	}

	if cfg.TURNREST.Enabled() {
		issuer, err := turnrest.NewIssuer(cfg.TURNREST, nil)
		if err != nil {
			logger.Error("turn rest credentials disabled", "err", err)
		} else {
			s.turn = issuer
		}
	}

	s.mux.HandleFunc("GET /{$}", s.handleBanner)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.HandleFunc("GET /version", s.handleVersion)
	s.mux.HandleFunc("GET /webrtc/ice", s.withOriginPolicy(s.handleICE))

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(s.log, withRequestID(withAccessLog(s.log, s.mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Mux is where the binary mounts further routes. Only use it before Serve.
func (s *Server) Mux() *http.ServeMux { return s.mux }

func (s *Server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

// Shutdown stops accepting requests and waits for in-flight ones. Upgraded
// signaling connections are not tracked here; the hub closes those.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.ready.Store(false)
	return s.srv.Close()
}
