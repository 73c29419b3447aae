package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/channelmux/client/internal/config"
	"github.com/obsidianstack/channelmux/client/internal/httpauth"
	"github.com/obsidianstack/channelmux/pkg/channelmux"
)

// Version information set at build time.
var version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:   "channelmux-client",
		Short: "Multiplexed channel client over a single websocket",
		Long: `channelmux-client keeps one websocket open to a channel server and
subscribes to the channels listed in its config file. Channels prefixed
with private- or presence- are authorized against the auth endpoint first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(g.logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "client.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug | info | warn | error")

	rootCmd.AddCommand(
		listenCmd(&g),
		sendCmd(&g),
		statsCmd(&g),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func setupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// dial opens a connection configured from c. Metrics go to reg.
func dial(c config.ClientConfig, reg prometheus.Registerer) (*channelmux.Connection, error) {
	client, err := httpauth.NewClient(c)
	if err != nil {
		return nil, err
	}
	dialer, err := httpauth.NewDialer(c)
	if err != nil {
		return nil, err
	}
	return channelmux.Dial(channelmux.Options{
		Host:              c.Host,
		AuthEndpoint:      c.AuthEndpoint,
		Header:            httpauth.Header(c.Auth),
		KeepaliveInterval: c.KeepaliveInterval,
		BufferLimit:       c.BufferSize,
		Logger:            slog.Default(),
		Registerer:        reg,
		HTTPClient:        client,
		Dialer:            dialer,
	})
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
