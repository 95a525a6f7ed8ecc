package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

const (
	DefaultMinInterval = 5 * time.Minute
	DefaultStaleAfter  = 600 * time.Second
)

// errSkip aborts UpdateLease without writing when the outcome is a skip.
var errSkip = errors.New("lease: skip")

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	MinInterval time.Duration
	StaleAfter  time.Duration
	Now         func() time.Time
	NewID       func() string
}

// Manager arbitrates refresh work per (topic, date) through lease records.
type Manager struct {
	store       ports.LeaseStore
	minInterval time.Duration
	staleAfter  time.Duration
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// NewManager wires a Manager over store.
func NewManager(store ports.LeaseStore, opts Options, logger *slog.Logger) *Manager {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       store,
		minInterval: opts.MinInterval,
		staleAfter:  opts.StaleAfter,
		now:         opts.Now,
		newID:       opts.NewID,
		logger:      logger,
	}
}

// GetOrCreate returns the lease for (topic, date), creating an idle one on first access.
func (m *Manager) GetOrCreate(ctx context.Context, topic, date string) (domain.RefreshLease, error) {
	lease, err := m.store.UpdateLease(ctx, topic, date, func(*domain.RefreshLease) error { return nil })
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("get lease %s/%s: %w", topic, date, err)
	}
	return lease, nil
}

// Status reads the lease without creating it. Unknown keys report an idle, never-refreshed lease.
func (m *Manager) Status(ctx context.Context, topic, date string) (domain.RefreshLease, error) {
	lease, err := m.store.GetLease(ctx, topic, date)
	if errors.Is(err, domain.ErrLeaseNotFound) {
		return domain.RefreshLease{Topic: topic, Date: date}, nil
	}
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("lease status %s/%s: %w", topic, date, err)
	}
	return lease, nil
}

// TryAcquire decides whether the caller may refresh (topic, date) now and, if so, marks the lease held.
// The whole decision runs inside one store read-modify-write.
func (m *Manager) TryAcquire(ctx context.Context, topic, date string) (domain.LeaseOutcome, domain.RefreshLease, error) {
	var outcome domain.LeaseOutcome

	lease, err := m.store.UpdateLease(ctx, topic, date, func(l *domain.RefreshLease) error {
		now := m.now().UTC()
		cleared := false

		if l.IsLeased {
			if !m.stale(*l, now) {
				outcome = domain.LeaseOutcome{Kind: domain.OutcomeSkippedCurrentlyRefreshing}
				return errSkip
			}
			m.logger.Warn("clearing stale lease", "topic", topic, "date", date, "lease_id", l.LeaseID)
			l.IsLeased = false
			l.LeaseID = ""
			l.LeasedAt = nil
			cleared = true
		}

		if l.LastRefreshedAt != nil {
			if elapsed := now.Sub(*l.LastRefreshedAt); elapsed < m.minInterval {
				outcome = domain.LeaseOutcome{
					Kind:             domain.OutcomeSkippedRecentlyRefreshed,
					RemainingSeconds: remainingSeconds(m.minInterval - elapsed),
				}
				if cleared {
					// persist the stale clear even though we skip
					return nil
				}
				return errSkip
			}
		}

		leasedAt := now
		l.IsLeased = true
		l.LeaseID = m.newID()
		l.LeasedAt = &leasedAt
		outcome = domain.LeaseOutcome{Kind: domain.OutcomeAcquired}
		return nil
	})
	if err != nil && !errors.Is(err, errSkip) {
		return domain.LeaseOutcome{}, domain.RefreshLease{}, fmt.Errorf("acquire lease %s/%s: %w", topic, date, err)
	}

	m.logger.Debug("lease decision", "topic", topic, "date", date, "outcome", outcome.Reason())
	return outcome, lease, nil
}

// Release ends a successful refresh: the lease is cleared and lastRefreshedAt advances to now.
func (m *Manager) Release(ctx context.Context, topic, date string) error {
	_, err := m.store.UpdateLease(ctx, topic, date, func(l *domain.RefreshLease) error {
		now := m.now().UTC()
		l.IsLeased = false
		l.LeaseID = ""
		l.LeasedAt = nil
		l.LastRefreshedAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("release lease %s/%s: %w", topic, date, err)
	}
	return nil
}

// Abandon clears the lease after failed work without advancing lastRefreshedAt,
// so a retry is allowed once the minimum interval since the last success has passed.
func (m *Manager) Abandon(ctx context.Context, topic, date string) error {
	_, err := m.store.UpdateLease(ctx, topic, date, func(l *domain.RefreshLease) error {
		l.IsLeased = false
		l.LeaseID = ""
		l.LeasedAt = nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("abandon lease %s/%s: %w", topic, date, err)
	}
	return nil
}

// stale ages a held lease from the time it was taken; rows written before
// LeasedAt existed fall back to lastRefreshedAt. A lease with neither is unrecoverable
// otherwise and is treated as stale.
func (m *Manager) stale(l domain.RefreshLease, now time.Time) bool {
	ref := l.LeasedAt
	if ref == nil {
		ref = l.LastRefreshedAt
	}
	if ref == nil {
		return true
	}
	return now.Sub(*ref) > m.staleAfter
}

func remainingSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
