package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/yourusername/pvemap/internal/adapter"
	"github.com/yourusername/pvemap/internal/config"
	"github.com/yourusername/pvemap/internal/exit"
	"github.com/yourusername/pvemap/internal/output"
	"github.com/yourusername/pvemap/internal/proxmox"
	"github.com/yourusername/pvemap/internal/report"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var appVersion = "dev"
var buildTime = "unknown"
var gitCommit = "unknown"

type rootOptions struct {
	configPath string
	debug      bool
	overrides  config.Overrides
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var logFile io.Closer

	cmd := &cobra.Command{
		Use:           "pvemap",
		Short:         "Map Proxmox VE nodes to the guests they run",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f, err := setupLogging(opts.debug)
			if err != nil {
				return exit.New(exit.CodeConfig, err)
			}
			logFile = f
			output.InitStyles()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				logFile.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file")
	flags.BoolVar(&opts.debug, "debug", false, "write debug logs to pvemap.log")
	flags.StringVar(&opts.overrides.Server, "server", "", "Proxmox server hostname or address")
	flags.StringVar(&opts.overrides.Username, "username", "", "Proxmox username (user or user@realm)")
	flags.StringVar(&opts.overrides.Password, "password", "", "Proxmox password")
	flags.StringVar(&opts.overrides.Realm, "realm", "", "authentication realm (default pam)")

	cmd.AddCommand(newPollCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging sends the log package to pvemap.log in debug mode and
// discards it otherwise
func setupLogging(debug bool) (io.Closer, error) {
	if !debug {
		log.SetOutput(io.Discard)
		return nil, nil
	}
	logFile, err := os.OpenFile("pvemap.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(logFile)
	return logFile, nil
}

// loadConfig resolves the configuration, applies flag overrides, prompts for
// missing passwords and keeps only the named clusters
func loadConfig(opts *rootOptions, only []string) (*config.Config, error) {
	cfg, path, err := config.Load(opts.configPath)
	if err != nil {
		return nil, exit.New(exit.CodeConfig, err)
	}
	if path != "" {
		log.Printf("Using config file %s", path)
	}

	if err := cfg.ApplyOverrides(opts.overrides); err != nil {
		return nil, exit.New(exit.CodeConfig, err)
	}
	if err := selectClusters(cfg, only); err != nil {
		return nil, exit.New(exit.CodeConfig, err)
	}
	if err := promptPasswords(cfg); err != nil {
		return nil, exit.New(exit.CodeConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, exit.New(exit.CodeConfig, err)
	}
	return cfg, nil
}

// selectClusters drops every cluster not named in only. An empty list keeps
// all of them.
func selectClusters(cfg *config.Config, only []string) error {
	if len(only) == 0 {
		return nil
	}

	byName := make(map[string]config.ClusterConfig, len(cfg.Clusters))
	for _, cc := range cfg.Clusters {
		byName[cc.Name] = cc
	}

	selected := make([]config.ClusterConfig, 0, len(only))
	for _, name := range only {
		cc, ok := byName[name]
		if !ok {
			return &proxmox.ConfigurationError{Field: "cluster", Msg: fmt.Sprintf("no cluster named %q", name)}
		}
		selected = append(selected, cc)
	}
	cfg.Clusters = selected
	return nil
}

// promptPasswords asks for any missing password when stdin is a terminal
func promptPasswords(cfg *config.Config) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	for i := range cfg.Clusters {
		cc := &cfg.Clusters[i]
		if cc.Transport == config.TransportShell || cc.Password != "" || cc.Username == "" || cc.Server == "" {
			continue
		}
		fmt.Fprintf(os.Stderr, "Password for %s on %s: ", cc.Credentials().Identity(), cc.Server)
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cc.Password = string(password)
	}
	return nil
}

// openStore opens the report database when one is configured
func openStore(cfg *config.Config) (*report.Store, error) {
	if cfg.Report.Database == "" {
		return nil, nil
	}
	store, err := report.OpenStore(cfg.Report.Database)
	if err != nil {
		return nil, exit.New(exit.CodeConfig, err)
	}
	return store, nil
}

func buildAdapters(cfg *config.Config, metrics *proxmox.Metrics, dest report.Destination) ([]*adapter.Adapter, error) {
	adapters := make([]*adapter.Adapter, 0, len(cfg.Clusters))
	for _, cc := range cfg.Clusters {
		a, err := adapter.New(cc, metrics, dest)
		if err != nil {
			closeAdapters(adapters)
			return nil, exit.New(exit.CodeConfig, fmt.Errorf("cluster %s: %w", cc.Name, err))
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

func closeAdapters(adapters []*adapter.Adapter) {
	for _, a := range adapters {
		if err := a.Close(); err != nil {
			log.Printf("Failed to close adapter %s: %v", a.Name(), err)
		}
	}
}

// failures summarizes failed clusters. The exit code follows the first
// failure.
func failures(results []adapter.Result) error {
	var first error
	failed := 0
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		failed++
		if first == nil {
			first = r.Err
		}
	}
	if first == nil {
		return nil
	}
	if len(results) == 1 {
		return exit.FromError(fmt.Errorf("%s: %w", results[0].Cluster, first))
	}

	code := exit.CodeConfig
	var exitErr *exit.Error
	if errors.As(exit.FromError(first), &exitErr) {
		code = exitErr.Code
	}
	return exit.New(code, fmt.Errorf("%d of %d clusters failed", failed, len(results)))
}
