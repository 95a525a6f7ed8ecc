package ports

import (
	"context"
	"time"

	"DigestAgent/internal/domain"
)

// ArticleSource pulls raw articles for a topic from upstream providers.
type ArticleSource interface {
	Fetch(ctx context.Context, topic string, maxArticles int) ([]domain.Article, error)
}

// FeedCatalog lists the feed URLs that serve a topic.
type FeedCatalog interface {
	FeedsFor(ctx context.Context, topic string) []string
}

// LeaseStore persists refresh leases. UpdateLease loads or lazily creates the (topic, date)
// record, applies fn, and stores the result as one read-modify-write on that row.
type LeaseStore interface {
	GetLease(ctx context.Context, topic, date string) (domain.RefreshLease, error)
	UpdateLease(ctx context.Context, topic, date string, fn func(*domain.RefreshLease) error) (domain.RefreshLease, error)
}

// NewsTx is the view of the news cache inside one scoped transaction.
type NewsTx interface {
	Exists(ctx context.Context, id domain.Identity) (bool, error)
	Create(ctx context.Context, item domain.CachedNewsItem) (int64, error)
}

// NewsRepository persists enriched articles.
type NewsRepository interface {
	Exists(ctx context.Context, id domain.Identity) (bool, error)
	// WithinTx commits fn's writes together, or rolls them all back when fn returns an error.
	WithinTx(ctx context.Context, fn func(tx NewsTx) error) error
	ListForDigest(ctx context.Context, topic, date string, limit int) ([]domain.CachedNewsItem, error)
	CountByTopic(ctx context.Context, date string) (map[string]int, error)
}

// UserDirectory is the read side of the account store plus the digest bookkeeping write.
type UserDirectory interface {
	ActiveTopics(ctx context.Context) ([]string, error)
	NotifiableUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	ActiveSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error)
	CustomFeedsForTopic(ctx context.Context, topic string) ([]domain.CustomFeed, error)
	MarkDigestSent(ctx context.Context, userID int64, at time.Time) error
}

// SystemLogWriter stores sweep audit records.
type SystemLogWriter interface {
	WriteSystemLog(ctx context.Context, entry domain.SystemLog) error
}

// SystemLogReader lists the most recent audit records, newest first.
type SystemLogReader interface {
	RecentSystemLogs(ctx context.Context, limit int) ([]domain.SystemLog, error)
}

// Enricher is a raw enrichment backend; it may fail.
type Enricher interface {
	Summarize(ctx context.Context, title, content string, tone domain.Tone) (string, error)
	Score(ctx context.Context, topic, title, content string) (float64, error)
}

// Enrichment is the never-failing capability the orchestrator consumes.
type Enrichment interface {
	Summarize(ctx context.Context, title, content string, tone domain.Tone) string
	Score(ctx context.Context, topic, title, content string) float64
}

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatOptions tunes a single completion.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// ChatClient talks to an OpenAI-compatible chat completion API.
type ChatClient interface {
	Complete(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)
}

// MailSender delivers one HTML message.
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ReportPublisher pushes sweep reports to an operator channel.
type ReportPublisher interface {
	PublishReport(ctx context.Context, text string) error
}

// Scheduler controls when a job executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
