package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yourusername/pvemap/internal/adapter"
	"github.com/yourusername/pvemap/internal/exit"
	"github.com/yourusername/pvemap/internal/output"
	"github.com/yourusername/pvemap/internal/proxmox"
	"github.com/yourusername/pvemap/internal/report"
	"github.com/yourusername/pvemap/internal/ui"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
		plain       bool
		outputMode  string
		clusters    []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll on an interval and show the live mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := output.ParseMode(outputMode)
			if err != nil {
				return exit.New(exit.CodeConfig, err)
			}

			cfg, err := loadConfig(opts, clusters)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Interval.Duration()
			}
			if interval <= 0 {
				return exit.New(exit.CodeConfig, fmt.Errorf("interval must be positive, got %s", interval))
			}
			if metricsAddr == "" {
				metricsAddr = cfg.MetricsAddr
			}

			reg := prometheus.NewRegistry()
			metrics := proxmox.NewMetrics(reg)
			if metricsAddr != "" {
				srv := serveMetrics(metricsAddr, reg)
				defer srv.Close()
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}

			var dests report.Multi
			if store != nil {
				defer store.Close()
				dests = append(dests, store)
			}
			if plain {
				dests = append(dests, report.NewWriterDestination(cmd.OutOrStdout(), output.MappingOptions{Mode: mode}))
			}
			var dest report.Destination
			if len(dests) > 0 {
				dest = dests
			}

			adapters, err := buildAdapters(cfg, metrics, dest)
			if err != nil {
				return err
			}
			defer closeAdapters(adapters)

			poll := func(ctx context.Context) []adapter.Result {
				results := adapter.PollAll(ctx, adapters)
				pruneStore(ctx, store, cfg)
				return results
			}

			ctx := cmd.Context()
			if plain {
				return runPlain(ctx, poll, interval, cmd.ErrOrStderr())
			}

			model := ui.NewModel(ctx, poll, interval, appVersion)
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return exit.New(exit.CodeConfig, fmt.Errorf("error running watch view: %w", err))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "time between polls (default from config, 1m)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&plain, "plain", false, "print each report instead of the live view")
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "report format with --plain: table|json|yaml")
	cmd.Flags().StringSliceVar(&clusters, "cluster", nil, "only watch the named clusters")

	return cmd
}

// runPlain polls until ctx is done, logging failures to errOut
func runPlain(ctx context.Context, poll ui.Poller, interval time.Duration, errOut io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, r := range poll(ctx) {
			if r.Err != nil && ctx.Err() == nil {
				fmt.Fprintf(errOut, "%s: %v\n", r.Cluster, r.Err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
	return srv
}
