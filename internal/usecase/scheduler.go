package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/metrics"
	"DigestAgent/internal/ports"
)

// DriverDeps wires the sweeps with their triggers and collaborators.
type DriverDeps struct {
	Refresher *Refresher
	Digests   *DigestService
	Users     ports.UserDirectory
	Logs      ports.SystemLogWriter
	// Reports is optional.
	Reports ports.ReportPublisher
	Daily   ports.Scheduler
	Hourly  ports.Scheduler
	// Location keys the ingestion date.
	Location *time.Location
	// TopicConcurrency bounds parallel topic refreshes in the daily sweep; zero means one at a time.
	TopicConcurrency int
	Logger           *slog.Logger
}

// Driver runs the daily ingestion sweep and the hourly digest sweep.
type Driver struct {
	refresher   *Refresher
	digests     *DigestService
	users       ports.UserDirectory
	logs        ports.SystemLogWriter
	reports     ports.ReportPublisher
	daily       ports.Scheduler
	hourly      ports.Scheduler
	loc         *time.Location
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// NewDriver returns a helper to start/stop recurring sweeps.
func NewDriver(deps DriverDeps) *Driver {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.TopicConcurrency <= 0 {
		deps.TopicConcurrency = 1
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Driver{
		refresher:   deps.Refresher,
		digests:     deps.Digests,
		users:       deps.Users,
		logs:        deps.Logs,
		reports:     deps.Reports,
		daily:       deps.Daily,
		hourly:      deps.Hourly,
		loc:         deps.Location,
		concurrency: deps.TopicConcurrency,
		now:         time.Now,
		logger:      deps.Logger,
	}
}

// DailySweep refreshes every distinct active topic once for the day of now.
func (d *Driver) DailySweep(ctx context.Context, now time.Time) domain.SweepReport {
	report := domain.SweepReport{
		Kind:      domain.SweepIngestion,
		Date:      now.In(d.loc).Format(domain.DateLayout),
		StartedAt: d.now(),
	}

	topics, err := d.users.ActiveTopics(ctx)
	if err != nil {
		d.logger.Error("list active topics", "error", err)
		report.Failed++
		return d.finish(ctx, report)
	}
	report.Processed = len(topics)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, topic := range topics {
		g.Go(func() error {
			outcome, err := d.refresher.Refresh(gctx, topic, report.Date)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				d.logger.Error("topic refresh", "topic", topic, "error", err)
				report.Failed++
			case outcome.Skipped:
				report.Skipped++
			case outcome.Success:
				report.Refreshed++
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	return d.finish(ctx, report)
}

// HourlySweep sends digests to every notifiable user whose schedule is due at now.
func (d *Driver) HourlySweep(ctx context.Context, now time.Time) domain.SweepReport {
	report := domain.SweepReport{
		Kind:      domain.SweepDigest,
		Date:      now.In(d.loc).Format(domain.DateLayout),
		StartedAt: d.now(),
	}

	users, err := d.users.NotifiableUsers(ctx)
	if err != nil {
		d.logger.Error("list notifiable users", "error", err)
		report.Failed++
		return d.finish(ctx, report)
	}
	report.Processed = len(users)

	for _, user := range users {
		if !ShouldSend(user, now.In(d.loc)) {
			report.Skipped++
			continue
		}

		err := d.digests.SendDigest(ctx, user, now)
		switch {
		case errors.Is(err, ErrNothingToSend):
			d.logger.Info("digest skipped, nothing cached", "user_id", user.ID)
			report.Skipped++
		case err != nil:
			d.logger.Error("digest failed", "user_id", user.ID, "error", err)
			report.Failed++
		default:
			report.Sent++
		}
	}

	return d.finish(ctx, report)
}

func (d *Driver) finish(ctx context.Context, report domain.SweepReport) domain.SweepReport {
	report.FinishedAt = d.now()
	metrics.RecordSweep(string(report.Kind))

	d.logger.Info("sweep completed",
		"kind", report.Kind,
		"date", report.Date,
		"processed", report.Processed,
		"refreshed", report.Refreshed,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration(),
	)

	summary := report.Summary()
	if d.logs != nil {
		entry := domain.SystemLog{
			Kind:      string(report.Kind),
			Message:   summary,
			Metadata:  report.Metadata(),
			CreatedAt: report.FinishedAt,
		}
		if err := d.logs.WriteSystemLog(ctx, entry); err != nil {
			d.logger.Error("write system log", "error", err)
		}
	}
	if d.reports != nil {
		if err := d.reports.PublishReport(ctx, summary); err != nil {
			d.logger.Warn("publish sweep report", "error", err)
		}
	}
	return report
}

// Start registers both sweeps with their triggers.
func (d *Driver) Start(ctx context.Context) error {
	if d.daily != nil {
		if err := d.daily.Start(ctx, func(t time.Time) { d.DailySweep(ctx, t) }); err != nil {
			return err
		}
	}
	if d.hourly != nil {
		if err := d.hourly.Start(ctx, func(t time.Time) { d.HourlySweep(ctx, t) }); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully tears down both triggers.
func (d *Driver) Stop(ctx context.Context) error {
	var errs []error
	if d.daily != nil {
		errs = append(errs, d.daily.Stop(ctx))
	}
	if d.hourly != nil {
		errs = append(errs, d.hourly.Stop(ctx))
	}
	return errors.Join(errs...)
}
