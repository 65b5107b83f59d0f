package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/yourusername/pvemap/internal/adapter"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var clusters []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Authenticate against each cluster and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, clusters)
			if err != nil {
				return err
			}

			adapters, err := buildAdapters(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer closeAdapters(adapters)

			results := make([]adapter.Result, 0, len(adapters))
			for _, a := range adapters {
				err := a.ConfirmConnection(cmd.Context())
				if err != nil {
					pterm.Error.Printfln("%s: %v", a.Name(), err)
				} else {
					pterm.Success.Printfln("%s: connection confirmed", a.Name())
				}
				results = append(results, adapter.Result{Cluster: a.Name(), Err: err})
			}
			return failures(results)
		},
	}

	cmd.Flags().StringSliceVar(&clusters, "cluster", nil, "only check the named clusters")

	return cmd
}
