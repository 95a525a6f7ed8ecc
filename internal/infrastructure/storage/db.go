package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// timeLayout is fixed-width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store is the SQL record store shared by every repository in this package.
type Store struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
	now     func() time.Time
}

// Open connects to driver ("postgres" or "sqlite3") and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		sqlDriver string
		format    sq.PlaceholderFormat
	)
	switch driver {
	case DriverPostgres:
		sqlDriver, format = "pgx", sq.Dollar
	case DriverSQLite:
		sqlDriver, format = "sqlite3", sq.Question
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one connection serializes writers and keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store := &Store{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
		now:     time.Now,
	}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func schema(driver string) []string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS refresh_leases (
			topic TEXT NOT NULL,
			date TEXT NOT NULL,
			is_leased BOOLEAN NOT NULL DEFAULT FALSE,
			lease_id TEXT NOT NULL DEFAULT '',
			leased_at TEXT,
			last_refreshed_at TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (topic, date)
		)`,
		`CREATE TABLE IF NOT EXISTS news_cache (
			id ` + pk + `,
			topic TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			summary_alternate TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			published_at TEXT,
			fetched_at TEXT NOT NULL,
			date TEXT NOT NULL,
			relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			raw_content TEXT NOT NULL DEFAULT '',
			entry_id TEXT NOT NULL DEFAULT '',
			feed_origin TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_news_cache_entry ON news_cache (entry_id) WHERE entry_id <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_news_cache_url ON news_cache (topic, date, url) WHERE entry_id = ''`,
		`CREATE INDEX IF NOT EXISTS ix_news_cache_topic_date ON news_cache (topic, date)`,
		`CREATE TABLE IF NOT EXISTS users (
			id ` + pk + `,
			email TEXT NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			schedule_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			schedule_kind TEXT NOT NULL DEFAULT 'daily',
			schedule_hour INTEGER NOT NULL DEFAULT 8,
			schedule_minute INTEGER NOT NULL DEFAULT 0,
			schedule_day_of_week INTEGER,
			schedule_interval_hours INTEGER,
			timezone TEXT NOT NULL DEFAULT '',
			last_sent_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id ` + pk + `,
			user_id BIGINT NOT NULL REFERENCES users (id),
			topic TEXT NOT NULL,
			alternate_tone BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS custom_feeds (
			id ` + pk + `,
			user_id BIGINT NOT NULL REFERENCES users (id),
			topic TEXT NOT NULL,
			feed_url TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS system_logs (
			id ` + pk + `,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
	}
}

func firstLine(stmt string) string {
	for i, r := range stmt {
		if r == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// naiveLayouts are zone-less timestamps written by other tools; they are read as UTC.
var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func parseTimePtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
