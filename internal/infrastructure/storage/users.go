package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

var (
	_ ports.UserDirectory   = (*Store)(nil)
	_ ports.SystemLogWriter = (*Store)(nil)
	_ ports.SystemLogReader = (*Store)(nil)
)

var userColumns = []string{
	"id", "email", "is_active", "notifications_enabled", "schedule_enabled", "schedule_kind",
	"schedule_hour", "schedule_minute", "schedule_day_of_week", "schedule_interval_hours", "timezone", "last_sent_at",
}

// CreateUser inserts a user and returns it with its id.
func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	sched := user.Schedule
	if sched.Kind == "" {
		sched.Kind = domain.ScheduleDaily
	}
	stmt, args, err := s.builder.Insert("users").
		Columns(userColumns[1:]...).
		Values(
			user.Email, user.IsActive, user.NotificationsEnabled, sched.Enabled, string(sched.Kind),
			sched.Hour, sched.Minute, nullInt(sched.DayOfWeek), nullInt(sched.IntervalHours), sched.Timezone,
			formatTimePtr(sched.LastSentAt),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.User{}, fmt.Errorf("build user insert: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&user.ID); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.Schedule = sched
	return user, nil
}

// AddSubscription inserts a subscription and returns it with its id.
func (s *Store) AddSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	stmt, args, err := s.builder.Insert("subscriptions").
		Columns("user_id", "topic", "alternate_tone", "is_active").
		Values(sub.UserID, sub.Topic, sub.AlternateTone, sub.IsActive).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("build subscription insert: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&sub.ID); err != nil {
		return domain.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	return sub, nil
}

// AddCustomFeed inserts a custom feed and returns it with its id.
func (s *Store) AddCustomFeed(ctx context.Context, feed domain.CustomFeed) (domain.CustomFeed, error) {
	stmt, args, err := s.builder.Insert("custom_feeds").
		Columns("user_id", "topic", "feed_url", "is_active").
		Values(feed.UserID, feed.Topic, feed.FeedURL, feed.IsActive).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.CustomFeed{}, fmt.Errorf("build custom feed insert: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&feed.ID); err != nil {
		return domain.CustomFeed{}, fmt.Errorf("insert custom feed: %w", err)
	}
	return feed, nil
}

// ActiveTopics is the sorted distinct union of topics from active subscriptions
// and active custom feeds, both restricted to active users.
func (s *Store) ActiveTopics(ctx context.Context) ([]string, error) {
	set := map[string]struct{}{}
	for _, table := range []string{"subscriptions", "custom_feeds"} {
		stmt, args, err := s.builder.Select("DISTINCT t.topic").
			From(table + " t").
			Join("users u ON u.id = t.user_id").
			Where(sq.Eq{"t.is_active": true, "u.is_active": true}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build topics query: %w", err)
		}
		if err := s.collectStrings(ctx, stmt, args, set); err != nil {
			return nil, fmt.Errorf("topics from %s: %w", table, err)
		}
	}

	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics, nil
}

func (s *Store) collectStrings(ctx context.Context, stmt string, args []any, into map[string]struct{}) error {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return err
		}
		into[value] = struct{}{}
	}
	return rows.Err()
}

// NotifiableUsers lists active users with notifications enabled, ordered by id.
func (s *Store) NotifiableUsers(ctx context.Context) ([]domain.User, error) {
	stmt, args, err := s.builder.Select(userColumns...).From("users").
		Where(sq.Eq{"is_active": true, "notifications_enabled": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build users query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return users, nil
}

// GetUser returns domain.ErrUserNotFound for unknown ids.
func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	stmt, args, err := s.builder.Select(userColumns...).From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.User{}, fmt.Errorf("build user query: %w", err)
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user          domain.User
		kind          string
		dayOfWeek     sql.NullInt64
		intervalHours sql.NullInt64
		lastSent      sql.NullString
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.IsActive, &user.NotificationsEnabled, &user.Schedule.Enabled, &kind,
		&user.Schedule.Hour, &user.Schedule.Minute, &dayOfWeek, &intervalHours, &user.Schedule.Timezone, &lastSent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}

	user.Schedule.Kind = domain.ScheduleKind(kind)
	user.Schedule.DayOfWeek = intPtr(dayOfWeek)
	user.Schedule.IntervalHours = intPtr(intervalHours)
	if user.Schedule.LastSentAt, err = parseTimePtr(lastSent); err != nil {
		return domain.User{}, fmt.Errorf("parse last_sent_at: %w", err)
	}
	return user, nil
}

// ActiveSubscriptions lists the user's active subscriptions ordered by id.
func (s *Store) ActiveSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	stmt, args, err := s.builder.Select("id", "user_id", "topic", "alternate_tone", "is_active").
		From("subscriptions").
		Where(sq.Eq{"user_id": userID, "is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subscriptions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Topic, &sub.AlternateTone, &sub.IsActive); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return subs, nil
}

// CustomFeedsForTopic lists active custom feeds of any user for topic.
func (s *Store) CustomFeedsForTopic(ctx context.Context, topic string) ([]domain.CustomFeed, error) {
	stmt, args, err := s.builder.Select("id", "user_id", "topic", "feed_url", "is_active").
		From("custom_feeds").
		Where(sq.Eq{"topic": topic, "is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build custom feeds query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query custom feeds: %w", err)
	}
	defer rows.Close()

	var feeds []domain.CustomFeed
	for rows.Next() {
		var feed domain.CustomFeed
		if err := rows.Scan(&feed.ID, &feed.UserID, &feed.Topic, &feed.FeedURL, &feed.IsActive); err != nil {
			return nil, fmt.Errorf("scan custom feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return feeds, nil
}

// MarkDigestSent stores the delivery instant.
func (s *Store) MarkDigestSent(ctx context.Context, userID int64, at time.Time) error {
	stmt, args, err := s.builder.Update("users").
		Set("last_sent_at", formatTime(at)).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sent: %w", err)
	}

	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark digest sent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// WriteSystemLog appends an audit row with JSON metadata.
func (s *Store) WriteSystemLog(ctx context.Context, entry domain.SystemLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode log metadata: %w", err)
	}

	stmt, args, err := s.builder.Insert("system_logs").
		Columns("kind", "message", "metadata", "created_at").
		Values(entry.Kind, entry.Message, string(meta), formatTime(entry.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build log insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}

// RecentSystemLogs returns the newest audit rows first.
func (s *Store) RecentSystemLogs(ctx context.Context, limit int) ([]domain.SystemLog, error) {
	stmt, args, err := s.builder.Select("id", "kind", "message", "metadata", "created_at").
		From("system_logs").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build logs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query system logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.SystemLog
	for rows.Next() {
		var (
			entry     domain.SystemLog
			meta      string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.Message, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan system log: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode log metadata: %w", err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return logs, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
