package main

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/channelmux/client/internal/config"
	"github.com/obsidianstack/channelmux/client/internal/telemetry"
)

func statsCmd(g *globalFlags) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the connection metrics of a running listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.Load(g.configPath)
				if err != nil {
					return err
				}
				if cfg.Client.MetricsAddr == "" {
					return fmt.Errorf("stats: metrics_addr is not configured; pass --url")
				}
				url = metricsURL(cfg.Client.MetricsAddr)
			}

			mfs, err := telemetry.Fetch(cmd.Context(), http.DefaultClient, url)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range telemetry.Summarise(mfs, "channelmux_") {
				fmt.Fprintf(w, "%s\t%g\n", s.Name, s.Value)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "metrics URL (default derived from metrics_addr)")
	return cmd
}

// metricsURL turns a listen address such as ":9102" into a scrape URL.
func metricsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/metrics"
}
