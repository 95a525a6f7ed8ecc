package usecase

import (
	"time"

	"DigestAgent/internal/domain"
)

// ShouldSend reports whether a daily digest is due for user at now.
//
// The user's schedule zone (or now's zone when unset) decides both the clock check and the
// calendar day; the window opens at hour:minute and closes at the end of that hour.
// Weekly and interval schedules are stored but never due.
func ShouldSend(user domain.User, now time.Time) bool {
	schedule := user.Schedule
	if !user.NotificationsEnabled || !schedule.Enabled {
		return false
	}
	if schedule.Kind != domain.ScheduleDaily {
		return false
	}

	loc := schedule.Location(now.Location())
	local := now.In(loc)
	if local.Hour() != schedule.Hour || local.Minute() < schedule.Minute {
		return false
	}

	if schedule.LastSentAt == nil {
		return true
	}
	return calendarDay(schedule.LastSentAt.In(loc)).Before(calendarDay(local))
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
