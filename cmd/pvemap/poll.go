package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"
	"github.com/yourusername/pvemap/internal/adapter"
	"github.com/yourusername/pvemap/internal/config"
	"github.com/yourusername/pvemap/internal/exit"
	"github.com/yourusername/pvemap/internal/output"
	"github.com/yourusername/pvemap/internal/report"
)

func newPollCmd(opts *rootOptions) *cobra.Command {
	var (
		outputMode string
		wide       bool
		clusters   []string
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Collect the host-to-guest mapping once",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := output.ParseMode(outputMode)
			if err != nil {
				return exit.New(exit.CodeConfig, err)
			}

			cfg, err := loadConfig(opts, clusters)
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			var dest report.Destination
			if store != nil {
				defer store.Close()
				dest = store
			}

			adapters, err := buildAdapters(cfg, nil, dest)
			if err != nil {
				return err
			}
			defer closeAdapters(adapters)

			ctx := cmd.Context()
			results := adapter.PollAll(ctx, adapters)

			if err := renderResults(cmd.OutOrStdout(), results, output.MappingOptions{Mode: mode, Wide: wide}); err != nil {
				return exit.New(exit.CodeConfig, err)
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Cluster, r.Err)
				}
			}

			pruneStore(ctx, store, cfg)
			return failures(results)
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "output format: table|json|yaml")
	cmd.Flags().BoolVar(&wide, "wide", false, "list guest ids per node")
	cmd.Flags().StringSliceVar(&clusters, "cluster", nil, "only poll the named clusters")

	return cmd
}

// renderResults writes the collected reports. Structured modes emit one
// document holding every report.
func renderResults(w io.Writer, results []adapter.Result, opts output.MappingOptions) error {
	reports := make([]*report.Report, 0, len(results))
	for _, r := range results {
		if r.Report != nil {
			reports = append(reports, r.Report)
		}
	}

	switch opts.Mode {
	case output.ModeJSON:
		return output.EmitJSON(w, reports)
	case output.ModeYAML:
		return output.EmitYAML(w, reports)
	}

	dest := report.NewWriterDestination(w, opts)
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := dest.Deliver(context.Background(), r); err != nil {
			return err
		}
	}
	return nil
}

// pruneStore applies the configured history retention
func pruneStore(ctx context.Context, store *report.Store, cfg *config.Config) {
	if store == nil || cfg.Report.Retention == 0 {
		return
	}
	if _, err := store.Cleanup(ctx, cfg.Report.Retention.Duration()); err != nil {
		log.Printf("Failed to prune report history: %v", err)
	}
}
