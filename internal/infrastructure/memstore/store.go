// Package memstore keeps every record in process memory. It backs the
// "memory" database driver and the package tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

// Store implements the record-store ports behind a single mutex.
type Store struct {
	mu sync.Mutex

	now    func() time.Time
	leases map[leaseKey]domain.RefreshLease
	items  []domain.CachedNewsItem
	nextID int64

	users         map[int64]domain.User
	subscriptions []domain.Subscription
	feeds         []domain.CustomFeed
	logs          []domain.SystemLog
}

type leaseKey struct {
	topic string
	date  string
}

var (
	_ ports.LeaseStore      = (*Store)(nil)
	_ ports.NewsRepository  = (*Store)(nil)
	_ ports.UserDirectory   = (*Store)(nil)
	_ ports.SystemLogWriter = (*Store)(nil)
	_ ports.SystemLogReader = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:    time.Now,
		leases: map[leaseKey]domain.RefreshLease{},
		users:  map[int64]domain.User{},
	}
}

// GetLease returns domain.ErrLeaseNotFound for unknown keys.
func (s *Store) GetLease(_ context.Context, topic, date string) (domain.RefreshLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease, ok := s.leases[leaseKey{topic, date}]
	if !ok {
		return domain.RefreshLease{}, domain.ErrLeaseNotFound
	}
	return lease, nil
}

// UpdateLease applies fn under the store lock, so the read-modify-write is atomic.
func (s *Store) UpdateLease(_ context.Context, topic, date string, fn func(*domain.RefreshLease) error) (domain.RefreshLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := leaseKey{topic, date}
	lease, ok := s.leases[key]
	if !ok {
		lease = domain.RefreshLease{Topic: topic, Date: date, CreatedAt: s.now().UTC()}
	}

	working := lease
	if err := fn(&working); err != nil {
		if !ok {
			s.leases[key] = lease
		}
		return lease, err
	}
	s.leases[key] = working
	return working, nil
}

// Exists checks committed items.
func (s *Store) Exists(_ context.Context, id domain.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(id, nil), nil
}

func (s *Store) existsLocked(id domain.Identity, staged []domain.CachedNewsItem) bool {
	for _, item := range s.items {
		if item.Identity() == id {
			return true
		}
	}
	for _, item := range staged {
		if item.Identity() == id {
			return true
		}
	}
	return false
}

// WithinTx stages creates and publishes them only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ports.NewsTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &newsTx{store: s, nextID: s.nextID}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.items = append(s.items, tx.staged...)
	s.nextID = tx.nextID
	return nil
}

type newsTx struct {
	store  *Store
	staged []domain.CachedNewsItem
	nextID int64
}

func (t *newsTx) Exists(_ context.Context, id domain.Identity) (bool, error) {
	return t.store.existsLocked(id, t.staged), nil
}

func (t *newsTx) Create(_ context.Context, item domain.CachedNewsItem) (int64, error) {
	if t.store.existsLocked(item.Identity(), t.staged) {
		return 0, domain.ErrDuplicateItem
	}
	t.nextID++
	item.ID = t.nextID
	t.staged = append(t.staged, item)
	return item.ID, nil
}

// ListForDigest orders by relevance, then newest fetch first.
func (s *Store) ListForDigest(_ context.Context, topic, date string, limit int) ([]domain.CachedNewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CachedNewsItem
	for _, item := range s.items {
		if item.Topic == topic && item.Date == date {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByTopic counts cached items per topic for date.
func (s *Store) CountByTopic(_ context.Context, date string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{}
	for _, item := range s.items {
		if item.Date == date {
			counts[item.Topic]++
		}
	}
	return counts, nil
}

// Items returns a copy of every committed item.
func (s *Store) Items() []domain.CachedNewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CachedNewsItem(nil), s.items...)
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// AddSubscription appends a subscription and assigns its id.
func (s *Store) AddSubscription(sub domain.Subscription) domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = int64(len(s.subscriptions) + 1)
	s.subscriptions = append(s.subscriptions, sub)
	return sub
}

// AddCustomFeed appends a custom feed and assigns its id.
func (s *Store) AddCustomFeed(feed domain.CustomFeed) domain.CustomFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed.ID = int64(len(s.feeds) + 1)
	s.feeds = append(s.feeds, feed)
	return feed
}

// ActiveTopics is the sorted distinct union of active subscription and custom feed topics of active users.
func (s *Store) ActiveTopics(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := map[string]struct{}{}
	for _, sub := range s.subscriptions {
		if sub.IsActive && s.users[sub.UserID].IsActive {
			set[sub.Topic] = struct{}{}
		}
	}
	for _, feed := range s.feeds {
		if feed.IsActive && s.users[feed.UserID].IsActive {
			set[feed.Topic] = struct{}{}
		}
	}

	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics, nil
}

// NotifiableUsers returns active users with notifications enabled, ordered by id.
func (s *Store) NotifiableUsers(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.User
	for _, user := range s.users {
		if user.IsActive && user.NotificationsEnabled {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetUser returns domain.ErrUserNotFound for unknown ids.
func (s *Store) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// ActiveSubscriptions lists the user's active subscriptions in insertion order.
func (s *Store) ActiveSubscriptions(_ context.Context, userID int64) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.IsActive {
			out = append(out, sub)
		}
	}
	return out, nil
}

// CustomFeedsForTopic lists active custom feeds of any user for topic.
func (s *Store) CustomFeedsForTopic(_ context.Context, topic string) ([]domain.CustomFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CustomFeed
	for _, feed := range s.feeds {
		if feed.Topic == topic && feed.IsActive {
			out = append(out, feed)
		}
	}
	return out, nil
}

// MarkDigestSent records the delivery time.
func (s *Store) MarkDigestSent(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	sent := at
	user.Schedule.LastSentAt = &sent
	s.users[userID] = user
	return nil
}

// WriteSystemLog appends an audit record.
func (s *Store) WriteSystemLog(_ context.Context, entry domain.SystemLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = int64(len(s.logs) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	s.logs = append(s.logs, entry)
	return nil
}

// RecentSystemLogs returns up to limit audit records, newest first.
func (s *Store) RecentSystemLogs(_ context.Context, limit int) ([]domain.SystemLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SystemLog, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.logs[i])
	}
	return out, nil
}
