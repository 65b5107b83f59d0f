// Package adapter wires a configured cluster to its transport, collector and
// report destination. Adapters share no mutable state with each other.
package adapter

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/yourusername/pvemap/internal/config"
	"github.com/yourusername/pvemap/internal/proxmox"
	"github.com/yourusername/pvemap/internal/report"
)

// Adapter polls one Proxmox cluster
type Adapter struct {
	name      string
	collector *proxmox.Collector
	dest      report.Destination
	closer    io.Closer
}

// New builds the adapter for a validated cluster config. dest may be nil.
func New(cfg config.ClusterConfig, metrics *proxmox.Metrics, dest report.Destination) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		api    proxmox.ClusterAPI
		closer io.Closer
	)

	switch cfg.Transport {
	case config.TransportAPI:
		client, err := proxmox.NewClient(cfg.Credentials(), proxmox.Options{
			Name:      cfg.Name,
			Port:      cfg.Port,
			VerifySSL: cfg.VerifySSL,
			Timeout:   cfg.Timeout.Duration(),
			Metrics:   metrics,
		})
		if err != nil {
			return nil, err
		}
		api = client
	case config.TransportShell:
		if !proxmox.IsProxmoxHost() {
			return nil, &proxmox.ConfigurationError{Field: "transport", Msg: "shell transport needs a Proxmox host (pvesh and /etc/pve)"}
		}
		api = proxmox.NewShellClient(nil)
	case config.TransportSSH:
		runner := proxmox.NewSSHRunner(cfg.Server, cfg.SSHPort, cfg.Username, cfg.Password, cfg.Timeout.Duration())
		api = proxmox.NewShellClient(runner)
		closer = runner
	default:
		return nil, &proxmox.ConfigurationError{Field: "transport", Msg: fmt.Sprintf("unknown transport %q", cfg.Transport)}
	}

	log.Printf("Adapter %s: transport=%s server=%s", cfg.Name, cfg.Transport, cfg.Server)
	a := NewWithAPI(cfg.Name, api, metrics, dest)
	a.closer = closer
	return a, nil
}

// NewWithAPI builds an adapter over an existing ClusterAPI
func NewWithAPI(name string, api proxmox.ClusterAPI, metrics *proxmox.Metrics, dest report.Destination) *Adapter {
	return &Adapter{
		name:      name,
		collector: proxmox.NewCollector(api, name, metrics),
		dest:      dest,
	}
}

// Name returns the cluster name
func (a *Adapter) Name() string {
	return a.name
}

// Collect runs one poll and wraps the mapping in a report
func (a *Adapter) Collect(ctx context.Context) (*report.Report, error) {
	mapping, err := a.collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return report.New(a.name, mapping), nil
}

// Poll collects and delivers a report. A delivery failure is returned
// together with the report.
func (a *Adapter) Poll(ctx context.Context) (*report.Report, error) {
	r, err := a.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.deliver(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

func (a *Adapter) deliver(ctx context.Context, r *report.Report) error {
	if a.dest == nil {
		return nil
	}
	if err := a.dest.Deliver(ctx, r); err != nil {
		return fmt.Errorf("deliver report for %s: %w", a.name, err)
	}
	return nil
}

// ConfirmConnection forces an authentication attempt against the cluster
func (a *Adapter) ConfirmConnection(ctx context.Context) error {
	return a.collector.ConfirmConnection(ctx)
}

// Close releases transport resources
func (a *Adapter) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Result is the outcome of one adapter's poll
type Result struct {
	Cluster string
	Report  *report.Report
	Err     error
}

// PollAll collects every adapter concurrently, then delivers the reports in
// adapter order so destinations see one report at a time. One cluster's
// failure does not affect the others.
func PollAll(ctx context.Context, adapters []*Adapter) []Result {
	results := make([]Result, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a *Adapter) {
			defer wg.Done()
			r, err := a.Collect(ctx)
			results[i] = Result{Cluster: a.name, Report: r, Err: err}
		}(i, a)
	}
	wg.Wait()

	for i, a := range adapters {
		if results[i].Err != nil {
			continue
		}
		results[i].Err = a.deliver(ctx, results[i].Report)
	}
	return results
}
