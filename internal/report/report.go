// Package report delivers poll results to their consumers.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/pvemap/internal/output"
	"github.com/yourusername/pvemap/internal/virt"
)

// Report is one poll's mapping for one cluster
type Report struct {
	ID          string        `json:"id" yaml:"id"`
	Cluster     string        `json:"cluster" yaml:"cluster"`
	CollectedAt time.Time     `json:"collectedAt" yaml:"collectedAt"`
	Mapping     *virt.Mapping `json:"mapping" yaml:"mapping"`
}

// New wraps a mapping in a report with a fresh ID
func New(cluster string, mapping *virt.Mapping) *Report {
	return &Report{
		ID:          uuid.NewString(),
		Cluster:     cluster,
		CollectedAt: time.Now().UTC(),
		Mapping:     mapping,
	}
}

// Summary is a one-line description used as a header above rendered tables
func (r *Report) Summary() string {
	return fmt.Sprintf("Cluster %s: %d nodes, %d guests (poll %s at %s)",
		r.Cluster, len(r.Mapping.Hypervisors), r.Mapping.GuestCount(),
		r.ID, r.CollectedAt.Local().Format("2006-01-02 15:04:05"))
}

// Destination receives reports
type Destination interface {
	Deliver(ctx context.Context, r *Report) error
}

// Multi delivers to every destination and joins their errors
type Multi []Destination

func (m Multi) Deliver(ctx context.Context, r *Report) error {
	var errs []error
	for _, d := range m {
		if err := d.Deliver(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriterDestination renders each report to w. Tables get a summary header;
// structured modes emit the whole report.
type WriterDestination struct {
	w    io.Writer
	opts output.MappingOptions
}

// NewWriterDestination creates a destination rendering in the given mode
func NewWriterDestination(w io.Writer, opts output.MappingOptions) *WriterDestination {
	return &WriterDestination{w: w, opts: opts}
}

func (d *WriterDestination) Deliver(ctx context.Context, r *Report) error {
	switch d.opts.Mode {
	case output.ModeJSON:
		return output.EmitJSON(d.w, r)
	case output.ModeYAML:
		// Each report is its own document in the stream
		if _, err := fmt.Fprintln(d.w, "---"); err != nil {
			return err
		}
		return output.EmitYAML(d.w, r)
	}

	if _, err := fmt.Fprintln(d.w, r.Summary()); err != nil {
		return err
	}
	return output.RenderMapping(d.w, r.Mapping, d.opts)
}

var (
	_ Destination = Multi(nil)
	_ Destination = (*WriterDestination)(nil)
	_ Destination = (*Store)(nil)
)
