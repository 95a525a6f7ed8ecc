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

var _ ports.LeaseStore = (*Store)(nil)

var leaseColumns = []string{"topic", "date", "is_leased", "lease_id", "leased_at", "last_refreshed_at", "created_at"}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetLease loads the lease row or returns domain.ErrLeaseNotFound.
func (s *Store) GetLease(ctx context.Context, topic, date string) (domain.RefreshLease, error) {
	query := s.builder.Select(leaseColumns...).From("refresh_leases").Where(sq.Eq{"topic": topic, "date": date})
	return s.scanLease(ctx, s.db, query)
}

// UpdateLease runs fn against the locked row inside one transaction. The row is
// inserted idle when missing. When fn fails the row is left as loaded.
func (s *Store) UpdateLease(ctx context.Context, topic, date string, fn func(*domain.RefreshLease) error) (domain.RefreshLease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("begin lease tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertSQL, insertArgs, err := s.builder.Insert("refresh_leases").
		Columns("topic", "date", "is_leased", "lease_id", "created_at").
		Values(topic, date, false, "", formatTime(s.now())).
		Suffix("ON CONFLICT (topic, date) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("build lease insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("create lease: %w", err)
	}

	query := s.builder.Select(leaseColumns...).From("refresh_leases").Where(sq.Eq{"topic": topic, "date": date})
	if s.driver == DriverPostgres {
		query = query.Suffix("FOR UPDATE")
	}
	current, err := s.scanLease(ctx, tx, query)
	if err != nil {
		return domain.RefreshLease{}, err
	}

	working := current
	if fnErr := fn(&working); fnErr != nil {
		if err := tx.Commit(); err != nil {
			return domain.RefreshLease{}, fmt.Errorf("commit lease tx: %w", err)
		}
		return current, fnErr
	}

	updateSQL, updateArgs, err := s.builder.Update("refresh_leases").
		SetMap(map[string]any{
			"is_leased":         working.IsLeased,
			"lease_id":          working.LeaseID,
			"leased_at":         formatTimePtr(working.LeasedAt),
			"last_refreshed_at": formatTimePtr(working.LastRefreshedAt),
		}).
		Where(sq.Eq{"topic": topic, "date": date}).
		ToSql()
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("build lease update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, updateSQL, updateArgs...); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("update lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("commit lease tx: %w", err)
	}
	return working, nil
}

func (s *Store) scanLease(ctx context.Context, runner queryRower, query sq.SelectBuilder) (domain.RefreshLease, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("build lease select: %w", err)
	}

	var (
		lease                   domain.RefreshLease
		leasedAt, lastRefreshed sql.NullString
		createdAt               string
	)
	err = runner.QueryRowContext(ctx, stmt, args...).Scan(
		&lease.Topic, &lease.Date, &lease.IsLeased, &lease.LeaseID, &leasedAt, &lastRefreshed, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RefreshLease{}, domain.ErrLeaseNotFound
	}
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("scan lease: %w", err)
	}

	if lease.LeasedAt, err = parseTimePtr(leasedAt); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("parse leased_at: %w", err)
	}
	if lease.LastRefreshedAt, err = parseTimePtr(lastRefreshed); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("parse last_refreshed_at: %w", err)
	}
	if lease.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("parse created_at: %w", err)
	}
	return lease, nil
}
