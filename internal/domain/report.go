package domain

import (
	"fmt"
	"time"
)

// SweepKind names a periodic sweep.
type SweepKind string

const (
	SweepIngestion SweepKind = "fetch"
	SweepDigest    SweepKind = "email"
)

// SweepReport is the completion record of one sweep.
type SweepReport struct {
	Kind       SweepKind
	Date       string
	Processed  int
	Refreshed  int
	Sent       int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration of the sweep.
func (r SweepReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders a one-line human description.
func (r SweepReport) Summary() string {
	switch r.Kind {
	case SweepIngestion:
		return fmt.Sprintf("ingestion sweep %s: %d topics, %d refreshed, %d skipped, %d failed",
			r.Date, r.Processed, r.Refreshed, r.Skipped, r.Failed)
	case SweepDigest:
		return fmt.Sprintf("digest sweep %s: %d users, %d sent, %d skipped, %d failed",
			r.Date, r.Processed, r.Sent, r.Skipped, r.Failed)
	default:
		return fmt.Sprintf("sweep %s: %d processed", r.Kind, r.Processed)
	}
}

// Metadata flattens the report for audit storage.
func (r SweepReport) Metadata() map[string]any {
	return map[string]any{
		"date":        r.Date,
		"processed":   r.Processed,
		"refreshed":   r.Refreshed,
		"sent":        r.Sent,
		"skipped":     r.Skipped,
		"failed":      r.Failed,
		"duration_ms": r.Duration().Milliseconds(),
		"timestamp":   r.FinishedAt.UTC().Format(time.RFC3339),
	}
}

// SystemLog is an audit row written by background jobs.
type SystemLog struct {
	ID        int64
	Kind      string
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}
