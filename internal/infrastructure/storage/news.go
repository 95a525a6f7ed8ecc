package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

var _ ports.NewsRepository = (*Store)(nil)

var newsColumns = []string{
	"id", "topic", "title", "summary", "summary_alternate", "url", "source", "image_url",
	"published_at", "fetched_at", "date", "relevance_score", "raw_content", "entry_id", "feed_origin",
}

type execQuerier interface {
	queryRower
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Exists reports whether an item with the identity is committed.
func (s *Store) Exists(ctx context.Context, id domain.Identity) (bool, error) {
	return s.exists(ctx, s.db, id)
}

func (s *Store) exists(ctx context.Context, runner queryRower, id domain.Identity) (bool, error) {
	query := s.builder.Select("1").From("news_cache").Limit(1)
	if id.ByEntry() {
		query = query.Where(sq.Eq{"entry_id": id.EntryID})
	} else {
		query = query.Where(sq.Eq{"topic": id.Topic, "date": id.Date, "url": id.URL, "entry_id": ""})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}

	var one int
	err = runner.QueryRowContext(ctx, stmt, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists %s: %w", id, err)
	}
	return true, nil
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ports.NewsTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin news tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&newsTx{store: s, runner: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit news tx: %w", err)
	}
	return nil
}

type newsTx struct {
	store  *Store
	runner execQuerier
}

func (t *newsTx) Exists(ctx context.Context, id domain.Identity) (bool, error) {
	return t.store.exists(ctx, t.runner, id)
}

// Create inserts the item. A unique-index conflict maps to domain.ErrDuplicateItem.
func (t *newsTx) Create(ctx context.Context, item domain.CachedNewsItem) (int64, error) {
	stmt, args, err := t.store.builder.Insert("news_cache").
		Columns(newsColumns[1:]...).
		Values(
			item.Topic, item.Title, item.Summary, item.SummaryAlternate, item.URL, item.Source, item.ImageURL,
			formatTimePtr(item.PublishedAt), formatTime(item.FetchedAt), item.Date, item.RelevanceScore,
			item.RawContent, item.EntryID, item.FeedOrigin,
		).
		Suffix("ON CONFLICT DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build news insert: %w", err)
	}

	var id int64
	err = t.runner.QueryRowContext(ctx, stmt, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrDuplicateItem
	}
	if err != nil {
		return 0, fmt.Errorf("insert news item: %w", err)
	}
	return id, nil
}

// ListForDigest returns the top items of a topic for date, best relevance first.
func (s *Store) ListForDigest(ctx context.Context, topic, date string, limit int) ([]domain.CachedNewsItem, error) {
	query := s.builder.Select(newsColumns...).From("news_cache").
		Where(sq.Eq{"topic": topic, "date": date}).
		OrderBy("relevance_score DESC", "fetched_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build digest query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query digest items: %w", err)
	}
	defer rows.Close()

	var items []domain.CachedNewsItem
	for rows.Next() {
		var (
			item      domain.CachedNewsItem
			published sql.NullString
			fetched   string
		)
		if err := rows.Scan(
			&item.ID, &item.Topic, &item.Title, &item.Summary, &item.SummaryAlternate, &item.URL, &item.Source,
			&item.ImageURL, &published, &fetched, &item.Date, &item.RelevanceScore, &item.RawContent,
			&item.EntryID, &item.FeedOrigin,
		); err != nil {
			return nil, fmt.Errorf("scan news item: %w", err)
		}
		if item.PublishedAt, err = parseTimePtr(published); err != nil {
			return nil, fmt.Errorf("parse published_at: %w", err)
		}
		if item.FetchedAt, err = parseTime(fetched); err != nil {
			return nil, fmt.Errorf("parse fetched_at: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// CountByTopic counts cached items per topic for date.
func (s *Store) CountByTopic(ctx context.Context, date string) (map[string]int, error) {
	stmt, args, err := s.builder.Select("topic", "COUNT(*)").From("news_cache").
		Where(sq.Eq{"date": date}).
		GroupBy("topic").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("count news items: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			topic string
			n     int
		)
		if err := rows.Scan(&topic, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[topic] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return counts, nil
}
