package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"DigestAgent/internal/ports"
)

// DailySpec is the cron expression firing at hour:minute in loc.
func DailySpec(hour, minute int, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), minute, hour)
}

// NextDaily returns the first hour:minute in loc strictly after now.
func NextDaily(now time.Time, hour, minute int, loc *time.Location) (time.Time, error) {
	schedule, err := cron.ParseStandard(DailySpec(hour, minute, loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse daily schedule: %w", err)
	}
	return schedule.Next(now), nil
}

// cronScheduler runs one job on a cron.Schedule. Overlapping fires are skipped
// while the previous run is still going.
type cronScheduler struct {
	schedule cron.Schedule
	err      error
	loc      *time.Location

	mu      sync.Mutex
	cron    *cron.Cron
	stopped chan struct{}
}

func newCronScheduler(schedule cron.Schedule, err error, loc *time.Location) cronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return cronScheduler{schedule: schedule, err: err, loc: loc}
}

// Start registers job; a second Start before Stop is a no-op. Cancelling ctx stops the scheduler.
func (s *cronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if s.err != nil {
		return s.err
	}
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { job(time.Now().In(s.loc)) }))
	c.Start()

	stopped := make(chan struct{})
	s.cron, s.stopped = c, stopped
	go func() {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
		case <-stopped:
		}
	}()
	return nil
}

// Stop halts the scheduler and waits for a running job to return.
func (s *cronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, stopped := s.cron, s.stopped
	s.cron, s.stopped = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	close(stopped)

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DailyScheduler fires once a day at a fixed wall-clock time. It never fires on Start.
type DailyScheduler struct {
	cronScheduler
}

var _ ports.Scheduler = (*DailyScheduler)(nil)

// NewDailyScheduler builds a scheduler firing at hour:minute in loc.
// An out-of-range time surfaces as an error from Start.
func NewDailyScheduler(hour, minute int, loc *time.Location) *DailyScheduler {
	schedule, err := cron.ParseStandard(DailySpec(hour, minute, loc))
	if err != nil {
		err = fmt.Errorf("parse daily schedule: %w", err)
	}
	return &DailyScheduler{cronScheduler: newCronScheduler(schedule, err, loc)}
}

// IntervalScheduler fires every fixed period, starting one period after Start.
type IntervalScheduler struct {
	cronScheduler
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler firing every period; non-positive means one hour.
// Periods are rounded up to whole seconds.
func NewIntervalScheduler(every time.Duration, loc *time.Location) *IntervalScheduler {
	if every <= 0 {
		every = time.Hour
	}
	return &IntervalScheduler{cronScheduler: newCronScheduler(cron.Every(every), nil, loc)}
}
