package domain

import (
	"errors"
	"time"
)

// ErrLeaseNotFound is returned by lease stores when no record exists for (topic, date).
var ErrLeaseNotFound = errors.New("refresh lease not found")

// DateLayout is the grouping key format shared by leases and cached news.
const DateLayout = "2006-01-02"

// RefreshLease arbitrates refresh work for one (topic, date). IsLeased implies LeaseID != "".
type RefreshLease struct {
	Topic           string
	Date            string
	IsLeased        bool
	LeaseID         string
	LeasedAt        *time.Time
	LastRefreshedAt *time.Time
	CreatedAt       time.Time
}

// OutcomeKind enumerates TryAcquire results.
type OutcomeKind int

const (
	OutcomeAcquired OutcomeKind = iota
	OutcomeSkippedRecentlyRefreshed
	OutcomeSkippedCurrentlyRefreshing
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAcquired:
		return "acquired"
	case OutcomeSkippedRecentlyRefreshed:
		return "recently_refreshed"
	case OutcomeSkippedCurrentlyRefreshing:
		return "currently_refreshing"
	default:
		return "unknown"
	}
}

// LeaseOutcome is the typed answer to "may I refresh now".
type LeaseOutcome struct {
	Kind OutcomeKind
	// RemainingSeconds is set for OutcomeSkippedRecentlyRefreshed.
	RemainingSeconds int
}

// Acquired reports whether the caller now holds the lease.
func (o LeaseOutcome) Acquired() bool {
	return o.Kind == OutcomeAcquired
}

// Reason is the wire-friendly name of the outcome.
func (o LeaseOutcome) Reason() string {
	return o.Kind.String()
}

// RefreshOutcome reports one topic refresh attempt.
type RefreshOutcome struct {
	Topic            string
	Date             string
	Success          bool
	ArticlesCreated  int
	ArticlesSkipped  int
	ArticlesFailed   int
	Skipped          bool
	Reason           string
	RemainingSeconds int
	Error            string
}
