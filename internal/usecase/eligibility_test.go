package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestAgent/internal/domain"
)

func dailyUser(hour, minute int, lastSent *time.Time) domain.User {
	return domain.User{
		ID:                   1,
		Email:                "u@example.com",
		IsActive:             true,
		NotificationsEnabled: true,
		Schedule: domain.ScheduleConfig{
			Enabled:    true,
			Kind:       domain.ScheduleDaily,
			Hour:       hour,
			Minute:     minute,
			LastSentAt: lastSent,
		},
	}
}

func TestShouldSendDailyWindow(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	at := func(day, hour, minute int) time.Time {
		return time.Date(2025, 3, day, hour, minute, 0, 0, shanghai)
	}
	sentToday := at(10, 9, 6)

	tests := []struct {
		name string
		user domain.User
		now  time.Time
		want bool
	}{
		{"never sent, inside window", dailyUser(9, 0, nil), at(10, 9, 5), true},
		{"already sent today", dailyUser(9, 0, &sentToday), at(10, 9, 30), false},
		{"next day", dailyUser(9, 0, &sentToday), at(11, 9, 5), true},
		{"before target minute", dailyUser(9, 30, nil), at(10, 9, 29), false},
		{"next hour closes the window", dailyUser(9, 0, nil), at(10, 10, 0), false},
		{"earlier hour", dailyUser(9, 0, nil), at(10, 8, 59), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldSend(tc.user, tc.now))
		})
	}
}

func TestShouldSendComparesLastSentInScheduleZone(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	// 2025-03-09 23:30 UTC is already 2025-03-10 07:30 in Shanghai.
	lastSent := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
	user := dailyUser(9, 0, &lastSent)

	assert.False(t, ShouldSend(user, time.Date(2025, 3, 10, 9, 10, 0, 0, shanghai)))

	user.Schedule.Timezone = "Asia/Shanghai"
	assert.False(t, ShouldSend(user, time.Date(2025, 3, 10, 1, 10, 0, 0, time.UTC)),
		"a user zone overrides the service zone of now")

	user.Schedule.LastSentAt = nil
	assert.True(t, ShouldSend(user, time.Date(2025, 3, 10, 1, 10, 0, 0, time.UTC)))
}

func TestShouldSendPreconditions(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)

	disabled := dailyUser(9, 0, nil)
	disabled.NotificationsEnabled = false
	assert.False(t, ShouldSend(disabled, now))

	off := dailyUser(9, 0, nil)
	off.Schedule.Enabled = false
	assert.False(t, ShouldSend(off, now))

	weekly := dailyUser(9, 0, nil)
	weekly.Schedule.Kind = domain.ScheduleWeekly
	assert.False(t, ShouldSend(weekly, now))

	interval := dailyUser(9, 0, nil)
	interval.Schedule.Kind = domain.ScheduleInterval
	assert.False(t, ShouldSend(interval, now))
}
