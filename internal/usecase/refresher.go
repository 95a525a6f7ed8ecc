package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/lease"
	"DigestAgent/internal/metrics"
)

// Status values of an on-demand refresh request.
const (
	StatusRefreshing = "refreshing"
	StatusSkipped    = "skipped"
)

// TopicRefresher runs the unguarded refresh work for a topic.
type TopicRefresher interface {
	RefreshTopic(ctx context.Context, topic, date string) domain.RefreshOutcome
}

// RefreshRequestStatus is the synchronous, advisory answer for one requested topic.
type RefreshRequestStatus struct {
	Topic            string `json:"topic"`
	Status           string `json:"status"`
	Reason           string `json:"reason"`
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
}

// LeaseStatus is the public view of a topic lease.
type LeaseStatus struct {
	Topic           string     `json:"topic"`
	Date            string     `json:"date"`
	IsLeased        bool       `json:"is_refreshing"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at"`
}

// Refresher runs topic refreshes under the lease discipline.
type Refresher struct {
	leases   *lease.Manager
	topics   TopicRefresher
	now      func() time.Time
	logger   *slog.Logger
	inflight sync.WaitGroup
}

// NewRefresher wires the lease manager with the refresh pipeline.
func NewRefresher(leases *lease.Manager, topics TopicRefresher, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{leases: leases, topics: topics, now: time.Now, logger: logger}
}

// Refresh acquires the (topic, date) lease and, when granted, runs the refresh synchronously.
// Skips are reported in the outcome; err is set only when the lease store fails.
func (r *Refresher) Refresh(ctx context.Context, topic, date string) (domain.RefreshOutcome, error) {
	decision, _, err := r.leases.TryAcquire(ctx, topic, date)
	if err != nil {
		return domain.RefreshOutcome{Topic: topic, Date: date, Error: err.Error()}, err
	}
	metrics.RecordLeaseOutcome(decision.Reason())

	if !decision.Acquired() {
		r.logger.Info("refresh skipped", "topic", topic, "date", date, "reason", decision.Reason(),
			"remaining_seconds", decision.RemainingSeconds)
		return skippedOutcome(topic, date, decision), nil
	}

	return r.run(ctx, topic, date), nil
}

// RequestRefresh decides every topic synchronously and dispatches the granted ones in the background.
func (r *Refresher) RequestRefresh(ctx context.Context, topics []string, date string) []RefreshRequestStatus {
	seen := map[string]struct{}{}
	statuses := make([]RefreshRequestStatus, 0, len(topics))

	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}

		decision, _, err := r.leases.TryAcquire(ctx, topic, date)
		if err != nil {
			r.logger.Error("refresh request failed", "topic", topic, "date", date, "error", err)
			statuses = append(statuses, RefreshRequestStatus{Topic: topic, Status: StatusSkipped, Reason: "error"})
			continue
		}
		metrics.RecordLeaseOutcome(decision.Reason())

		if !decision.Acquired() {
			statuses = append(statuses, RefreshRequestStatus{
				Topic:            topic,
				Status:           StatusSkipped,
				Reason:           decision.Reason(),
				RemainingSeconds: decision.RemainingSeconds,
			})
			continue
		}

		r.inflight.Add(1)
		go func(topic string) {
			defer r.inflight.Done()
			r.run(context.WithoutCancel(ctx), topic, date)
		}(topic)

		statuses = append(statuses, RefreshRequestStatus{Topic: topic, Status: StatusRefreshing, Reason: "triggered"})
	}

	return statuses
}

// GetLeaseStatus reports the lease for (topic, date) without creating it.
func (r *Refresher) GetLeaseStatus(ctx context.Context, topic, date string) (LeaseStatus, error) {
	l, err := r.leases.Status(ctx, topic, date)
	if err != nil {
		return LeaseStatus{}, err
	}
	return LeaseStatus{Topic: topic, Date: date, IsLeased: l.IsLeased, LastRefreshedAt: l.LastRefreshedAt}, nil
}

// Wait blocks until background refreshes started by RequestRefresh have finished.
func (r *Refresher) Wait() {
	r.inflight.Wait()
}

// run executes the refresh while holding the lease and always gives the lease back:
// Release after success, Abandon after failure or panic.
func (r *Refresher) run(ctx context.Context, topic, date string) (outcome domain.RefreshOutcome) {
	started := r.now()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("refresh panicked", "topic", topic, "date", date, "panic", p)
			outcome = domain.RefreshOutcome{Topic: topic, Date: date, Error: fmt.Sprintf("panic: %v", p)}
		}

		finish := context.WithoutCancel(ctx)
		var err error
		if outcome.Success {
			err = r.leases.Release(finish, topic, date)
		} else {
			err = r.leases.Abandon(finish, topic, date)
		}
		if err != nil {
			r.logger.Error("lease not returned, it will expire as stale", "topic", topic, "date", date, "error", err)
		}

		metrics.RecordRefresh(r.now().Sub(started).Seconds())
	}()

	outcome = r.topics.RefreshTopic(ctx, topic, date)
	if !outcome.Success {
		r.logger.Error("refresh failed", "topic", topic, "date", date, "error", outcome.Error)
	}
	return outcome
}

func skippedOutcome(topic, date string, decision domain.LeaseOutcome) domain.RefreshOutcome {
	return domain.RefreshOutcome{
		Topic:            topic,
		Date:             date,
		Success:          decision.Kind == domain.OutcomeSkippedRecentlyRefreshed,
		Skipped:          true,
		Reason:           decision.Reason(),
		RemainingSeconds: decision.RemainingSeconds,
	}
}
