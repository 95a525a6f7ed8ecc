// Package redislease keeps refresh leases in Redis hashes so several service
// replicas can share lease state without a shared SQL database.
package redislease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

const (
	keyPrefix  = "digest:lease:"
	maxRetries = 64
)

// ErrContention is returned when optimistic retries are exhausted.
var ErrContention = errors.New("redislease: too much contention on lease key")

// Store implements ports.LeaseStore with WATCH/MULTI transactions.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

var _ ports.LeaseStore = (*Store)(nil)

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// Dial connects to addr, accepting either host:port or a redis:// URL.
func Dial(ctx context.Context, addr string) (*Store, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(client), nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func leaseKey(topic, date string) string {
	return keyPrefix + topic + ":" + date
}

// GetLease returns domain.ErrLeaseNotFound when the hash does not exist.
func (s *Store) GetLease(ctx context.Context, topic, date string) (domain.RefreshLease, error) {
	values, err := s.client.HGetAll(ctx, leaseKey(topic, date)).Result()
	if err != nil {
		return domain.RefreshLease{}, fmt.Errorf("load lease: %w", err)
	}
	if len(values) == 0 {
		return domain.RefreshLease{}, domain.ErrLeaseNotFound
	}
	return decode(topic, date, values)
}

// UpdateLease watches the lease key, applies fn and writes the result in MULTI/EXEC,
// retrying when another writer touched the key in between.
func (s *Store) UpdateLease(ctx context.Context, topic, date string, fn func(*domain.RefreshLease) error) (domain.RefreshLease, error) {
	key := leaseKey(topic, date)

	for attempt := 0; attempt < maxRetries; attempt++ {
		var (
			result domain.RefreshLease
			fnErr  error
		)

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			values, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}

			current := domain.RefreshLease{Topic: topic, Date: date, CreatedAt: s.now().UTC()}
			found := len(values) > 0
			if found {
				if current, err = decode(topic, date, values); err != nil {
					return err
				}
			}

			working := current
			if fnErr = fn(&working); fnErr != nil {
				result = current
				if found {
					return nil
				}
				working = current
			} else {
				result = working
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, encode(working))
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.RefreshLease{}, fmt.Errorf("update lease %s: %w", key, err)
		}
		return result, fnErr
	}
	return domain.RefreshLease{}, ErrContention
}

func encode(l domain.RefreshLease) map[string]any {
	leased := "0"
	if l.IsLeased {
		leased = "1"
	}
	return map[string]any{
		"is_leased":         leased,
		"lease_id":          l.LeaseID,
		"leased_at":         formatTimePtr(l.LeasedAt),
		"last_refreshed_at": formatTimePtr(l.LastRefreshedAt),
		"created_at":        l.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decode(topic, date string, values map[string]string) (domain.RefreshLease, error) {
	lease := domain.RefreshLease{
		Topic:    topic,
		Date:     date,
		IsLeased: values["is_leased"] == "1",
		LeaseID:  values["lease_id"],
	}

	var err error
	if lease.LeasedAt, err = parseTimePtr(values["leased_at"]); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("parse leased_at: %w", err)
	}
	if lease.LastRefreshedAt, err = parseTimePtr(values["last_refreshed_at"]); err != nil {
		return domain.RefreshLease{}, fmt.Errorf("parse last_refreshed_at: %w", err)
	}
	if created := values["created_at"]; created != "" {
		if lease.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return domain.RefreshLease{}, fmt.Errorf("parse created_at: %w", err)
		}
	}
	return lease, nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimePtr(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
