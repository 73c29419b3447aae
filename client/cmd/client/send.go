package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/channelmux/client/internal/config"
	"github.com/obsidianstack/channelmux/pkg/types"
)

func sendCmd(g *globalFlags) *cobra.Command {
	var (
		channel string
		data    string
		timeout time.Duration
		linger  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send EVENT",
		Short: "Send one envelope once the socket is identified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnvelope(args[0], channel, data)
			if err != nil {
				return err
			}

			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			conn, err := dial(cfg.Client, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer func() {
				conn.Close()
				<-conn.Done()
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			select {
			case <-conn.Identified():
			case <-ctx.Done():
				return fmt.Errorf("send: not identified within %s", timeout)
			}

			conn.Send(env)
			// Send is asynchronous; give the writer a moment before closing.
			time.Sleep(linger)
			slog.Info("sent", "event", env.Event, "channel", env.Channel, "socket_id", conn.SocketID())
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel the envelope is addressed to")
	cmd.Flags().StringVar(&data, "data", "", "JSON payload")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the handshake")
	cmd.Flags().DurationVar(&linger, "linger", 250*time.Millisecond, "delay before closing after the send")
	return cmd
}

// buildEnvelope validates the payload and assembles the outbound envelope.
func buildEnvelope(event, channel, data string) (types.Envelope, error) {
	env := types.Envelope{Event: event, Channel: channel}
	if data == "" {
		return env, nil
	}
	if !json.Valid([]byte(data)) {
		return types.Envelope{}, fmt.Errorf("send: --data is not valid JSON")
	}
	env.Data = json.RawMessage(data)
	return env, nil
}
