package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/yourusername/pvemap/internal/config"
	"github.com/yourusername/pvemap/internal/exit"
	"github.com/yourusername/pvemap/internal/output"
	"github.com/yourusername/pvemap/internal/proxmox"
	"github.com/yourusername/pvemap/internal/report"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		database   string
		cluster    string
		limit      int
		pollID     string
		outputMode string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored polls, or the guests of one poll",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := output.ParseMode(outputMode)
			if err != nil {
				return exit.New(exit.CodeConfig, err)
			}

			if database == "" {
				cfg, _, err := config.Load(opts.configPath)
				if err != nil {
					return exit.New(exit.CodeConfig, err)
				}
				database = cfg.Report.Database
			}
			if database == "" {
				return exit.New(exit.CodeConfig, &proxmox.ConfigurationError{Field: "report.database", Msg: "no report database configured"})
			}

			store, err := report.OpenStore(database)
			if err != nil {
				return exit.New(exit.CodeConfig, err)
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if pollID != "" {
				guests, err := store.Guests(cmd.Context(), pollID)
				if err != nil {
					return exit.New(exit.CodeConfig, err)
				}
				return emit(w, mode, guests, guestRows(guests))
			}

			records, err := store.History(cmd.Context(), cluster, limit)
			if err != nil {
				return exit.New(exit.CodeConfig, err)
			}
			if err := emit(w, mode, records, historyRows(records)); err != nil {
				return err
			}
			if mode != output.ModeTable {
				return nil
			}

			polls, guests, err := store.Stats(cmd.Context())
			if err != nil {
				return exit.New(exit.CodeConfig, err)
			}
			fmt.Fprintf(w, "%d polls and %d guest associations stored in %s\n", polls, guests, database)
			return nil
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "report database (default from config)")
	cmd.Flags().StringVar(&cluster, "cluster", "", "only show polls of this cluster")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of polls to list")
	cmd.Flags().StringVar(&pollID, "poll", "", "show the guests stored for this poll id")
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "output format: table|json|yaml")

	return cmd
}

func emit(w io.Writer, mode output.Mode, value any, rows [][]string) error {
	var err error
	switch mode {
	case output.ModeJSON:
		err = output.EmitJSON(w, value)
	case output.ModeYAML:
		err = output.EmitYAML(w, value)
	default:
		err = output.RenderTable(w, rows)
	}
	if err != nil {
		return exit.New(exit.CodeConfig, err)
	}
	return nil
}

func historyRows(records []report.PollRecord) [][]string {
	rows := [][]string{{"POLL", "CLUSTER", "COLLECTED", "NODES", "GUESTS"}}
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.Cluster,
			rec.CollectedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(rec.Hypervisors),
			strconv.Itoa(rec.Guests),
		})
	}
	return rows
}

func guestRows(guests []report.GuestRecord) [][]string {
	rows := [][]string{{"NODE", "GUEST", "TYPE"}}
	for _, g := range guests {
		rows = append(rows, []string{g.Hypervisor, g.GuestID, string(g.Technology)})
	}
	return rows
}
