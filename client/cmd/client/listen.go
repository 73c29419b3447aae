package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/channelmux/client/internal/config"
	"github.com/obsidianstack/channelmux/client/internal/security"
	"github.com/obsidianstack/channelmux/client/internal/telemetry"
	"github.com/obsidianstack/channelmux/pkg/channelmux"
	"github.com/obsidianstack/channelmux/pkg/types"
)

func listenCmd(g *globalFlags) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Subscribe to the configured channels and log every event",
		Long: `Connect, subscribe to every channel in the config file and log each
event received. Edits to the channel list are applied without reconnecting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), g.configPath, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the channel list when the config file changes")
	return cmd
}

func runListen(parent context.Context, configPath string, watch bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	c := cfg.Client
	slog.Info("channelmux-client starting",
		"host", c.Host,
		"auth_endpoint", c.AuthEndpoint,
		"channels", len(c.Channels),
		"protected", len(c.ProtectedChannels()),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cs := security.Check(ctx, c.Host, c.TLS.InsecureSkipVerify); cs != nil {
		attrs := []any{"endpoint", cs.Endpoint, "status", cs.Status}
		if cs.Status != "unreachable" {
			attrs = append(attrs, "issuer", cs.Issuer, "days_left", cs.DaysLeft)
		}
		if cs.Status == "valid" {
			slog.Info("tls certificate", attrs...)
		} else {
			slog.Warn("tls certificate", attrs...)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	conn, err := dial(c, reg)
	if err != nil {
		return err
	}

	conn.On(types.EventSubscriptionError, func(data json.RawMessage) {
		slog.Warn("server rejected subscription", "data", string(data))
	})
	for _, name := range c.Channels {
		conn.Subscribe(logChannel(name))
	}

	if c.MetricsAddr != "" {
		srv := metricsServer(c.MetricsAddr, reg)
		go func() {
			slog.Info("metrics listening", "addr", c.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	if watch {
		go func() {
			if err := config.WatchChannels(ctx, configPath, c.Channels, func(change config.ChannelChange) {
				applyChannels(conn, change)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	go func() {
		select {
		case <-conn.Identified():
			slog.Info("connected", "socket_id", conn.SocketID())
		case <-ctx.Done():
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case <-conn.Disconnected():
		runErr = errors.New("connection to " + c.Host + " lost")
	}
	slog.Info("channelmux-client shutting down", "socket_id", conn.SocketID(), "channels", conn.Channels())
	conn.Close()
	<-conn.Done()
	return runErr
}

// logChannel returns a channel whose events are written to the default logger.
func logChannel(name string) channelmux.Channel {
	return channelmux.NewChannel(name, func(event string, data json.RawMessage) {
		slog.Info("event", "channel", name, "event", event, "data", string(data))
	})
}

// subscriber is the part of a Connection the reload path drives.
type subscriber interface {
	Subscribe(ch channelmux.Channel)
	Unsubscribe(name string)
}

// applyChannels unsubscribes the removed channels and subscribes the added ones.
func applyChannels(conn subscriber, change config.ChannelChange) {
	for _, name := range change.Removed {
		conn.Unsubscribe(name)
	}
	for _, name := range change.Added {
		conn.Subscribe(logChannel(name))
	}
}

func metricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(g))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
