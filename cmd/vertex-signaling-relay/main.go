package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/auth"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/config"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/httpserver"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/metrics"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/ratelimit"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/signaling"
	"github.com/vertex-rtc/vertex/signaling-relay/internal/tlsreload"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		logger.Error("failed to configure signaling auth", "err", err)
		os.Exit(2)
	}

	logger.Info("starting vertex-signaling-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"ws_path", cfg.WSPath,
		"tls", cfg.TLSEnabled(),
		"auth_mode", cfg.AuthMode,
		"max_peers", cfg.MaxPeers,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"ice_servers", len(cfg.ICEServers),
	)
	logStartupSecurityWarnings(logger, cfg)

	m := metrics.New()

	var tlsCfg *tls.Config
	if cfg.TLSEnabled() {
		reloader, err := tlsreload.New(cfg.TLSCertFile, cfg.TLSKeyFile, logger, m)
		if err != nil {
			logger.Error("failed to load tls key pair", "err", err)
			os.Exit(2)
		}
		defer reloader.Close()
		tlsCfg = reloader.TLSConfig()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	commit, buildTime := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: buildTime})

	hub := signaling.NewHub(signaling.HubConfig{
		Logger:   logger,
		Metrics:  m,
		MaxPeers: cfg.MaxPeers,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	var connectLimiter *ratelimit.KeyedLimiter
	if rate := int64(cfg.MaxSignalingConnectsPerSecondPerIP); rate > 0 {
		connectLimiter = ratelimit.NewKeyedLimiter(ratelimit.RealClock{}, rate, rate, ratelimit.DefaultMaxKeys, nil)
	}

	sig := signaling.NewServer(signaling.Config{
		Hub:                  hub,
		Logger:               logger,
		Metrics:              m,
		Path:                 cfg.WSPath,
		AllowedOrigins:       cfg.AllowedOrigins,
		Verifier:             verifier,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		SendQueueMessages:    cfg.SignalingSendQueueMessages,
		ConnectLimiter:       connectLimiter,
	})
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		stopHub()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so the
	// hub closes them before the listener drains.
	stopHub()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values but fall back to the Go build info for
	// `go run` and dev builds.
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
