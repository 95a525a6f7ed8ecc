package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned when a user lookup misses.
var ErrUserNotFound = errors.New("user not found")

// ScheduleKind is the active digest schedule mode of a user.
type ScheduleKind string

const (
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleWeekly   ScheduleKind = "weekly"
	ScheduleInterval ScheduleKind = "interval"
)

// ScheduleConfig is the per-user digest schedule. Only Daily is evaluated;
// DayOfWeek (0=Mon..6=Sun) and IntervalHours are stored for the other modes and otherwise inert.
type ScheduleConfig struct {
	Enabled       bool
	Kind          ScheduleKind
	Hour          int
	Minute        int
	DayOfWeek     *int
	IntervalHours *int
	// Timezone is an IANA name; empty means the service zone.
	Timezone   string
	LastSentAt *time.Time
}

// Validate applies the settings rules for the selected mode.
func (s ScheduleConfig) Validate() error {
	validClock := s.Hour >= 0 && s.Hour <= 23 && s.Minute >= 0 && s.Minute <= 59

	switch s.Kind {
	case ScheduleDaily:
		if !validClock {
			return fmt.Errorf("invalid hour or minute: %02d:%02d", s.Hour, s.Minute)
		}
	case ScheduleWeekly:
		if !validClock {
			return fmt.Errorf("invalid hour or minute: %02d:%02d", s.Hour, s.Minute)
		}
		if s.DayOfWeek == nil || *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return errors.New("day_of_week must be within 0..6 for weekly schedule")
		}
	case ScheduleInterval:
		if s.IntervalHours == nil || *s.IntervalHours <= 0 {
			return errors.New("interval_hours must be positive for interval schedule")
		}
	default:
		return fmt.Errorf("unknown schedule type %q", s.Kind)
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}
	return nil
}

// Location resolves the schedule zone, falling back when unset or unknown.
func (s ScheduleConfig) Location(fallback *time.Location) *time.Location {
	if s.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// User is the subset of the account record the digest pipeline reads.
type User struct {
	ID                   int64
	Email                string
	IsActive             bool
	NotificationsEnabled bool
	Schedule             ScheduleConfig
}

// Subscription binds a user to a topic.
type Subscription struct {
	ID            int64
	UserID        int64
	Topic         string
	AlternateTone bool
	IsActive      bool
}

// CustomFeed is a user-registered feed URL contributing articles to a topic.
type CustomFeed struct {
	ID       int64
	UserID   int64
	Topic    string
	FeedURL  string
	IsActive bool
}
