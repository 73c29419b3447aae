package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidianstack/channelmux/server/internal/api"
	"github.com/obsidianstack/channelmux/server/internal/broker"
	"github.com/obsidianstack/channelmux/server/internal/config"
	"github.com/obsidianstack/channelmux/server/internal/hub"
	"github.com/obsidianstack/channelmux/server/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("channelmux-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"broker", cfg.Server.Broker.Backend,
		"token_ttl", cfg.Server.Tokens.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	secret, err := signingSecret(cfg.Server.Tokens)
	if err != nil {
		slog.Error("failed to generate signing secret", "err", err)
		os.Exit(1)
	}
	issuer := tokens.NewIssuer(secret, cfg.Server.Tokens.TTL)

	// Broker fans published events out to every server instance.
	b, err := broker.New(ctx, cfg.Server.Broker)
	if err != nil {
		slog.Error("failed to connect broker", "backend", cfg.Server.Broker.Backend, "err", err)
		os.Exit(1)
	}
	defer b.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// WebSocket hub, delivering broker messages to channel members.
	h := hub.New(hub.Options{
		Tokens:      issuer,
		Broker:      b,
		IdleTimeout: cfg.Server.Hub.IdleTimeout,
		SendBuffer:  cfg.Server.Hub.SendBuffer,
		Registerer:  reg,
	})
	go func() {
		if err := h.Run(ctx); err != nil {
			slog.Error("hub stopped", "err", err)
			cancel()
		}
	}()

	// Combined HTTP server: REST API + WebSocket endpoint + metrics on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(api.Options{
		Hub:        h,
		Tokens:     issuer,
		AuthMode:   cfg.Server.Auth.Mode,
		AuthHeader: cfg.Server.Auth.EffectiveHeader(),
		AuthKey:    cfg.Server.Auth.Key(),
	}))
	httpMux.Handle("/ws", h)
	httpMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("channelmux-server shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// signingSecret returns the configured token key, or a random one when none is
// set. Tokens signed with a random key do not survive a restart and are not
// accepted by other instances.
func signingSecret(c config.TokensConfig) ([]byte, error) {
	if s := c.Secret(); s != "" {
		return []byte(s), nil
	}
	slog.Warn("no token secret configured, generating a random one", "secret_env", c.SecretEnv)
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
