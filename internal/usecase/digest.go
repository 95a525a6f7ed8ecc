package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/metrics"
	"DigestAgent/internal/ports"
)

// DigestItemsPerTopic bounds each topic section of a digest.
const DigestItemsPerTopic = 5

var (
	// ErrNothingToSend means none of the user's topics has cached items for the day.
	ErrNothingToSend = errors.New("digest has no items")
	// ErrNoSender means the service was built without a mail sender.
	ErrNoSender = errors.New("no mail sender configured")
)

var digestTemplate = template.Must(template.New("digest").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
h1 { color: #2563eb; }
h2 { color: #1e40af; border-bottom: 2px solid #3b82f6; padding-bottom: 5px; }
.news-item { margin: 15px 0; padding: 10px; background: #f3f4f6; border-radius: 5px; }
.news-title { font-weight: bold; color: #1f2937; }
.news-summary { margin: 5px 0; }
a { color: #2563eb; text-decoration: none; }
</style>
</head>
<body>
<h1>📰 Daily Digest - {{.Date}}</h1>
<p>Hi {{.Email}},</p>
<p>Here's your personalized news digest for today:</p>
{{range .Sections}}
<h2>{{.Topic}}</h2>
{{range .Items}}
<div class="news-item">
<div class="news-title">{{.Title}}</div>
<div class="news-summary">{{.Summary}}</div>
{{if .URL}}<a href="{{.URL}}" target="_blank">Read more →</a>{{end}}
</div>
{{end}}
{{end}}
<hr>
<p style="color: #6b7280; font-size: 12px;">
You're receiving this because you enabled email notifications in Daily Digest Agent.
<br>To unsubscribe, please update your settings in the dashboard.
</p>
</body>
</html>
`))

// Digest is a rendered message ready for delivery.
type Digest struct {
	Subject string
	HTML    string
	Items   int
}

type digestView struct {
	Date     string
	Email    string
	Sections []digestSection
}

type digestSection struct {
	Topic string
	Items []digestItem
}

type digestItem struct {
	Title   string
	Summary string
	URL     string
}

// DigestService renders and delivers per-user digests from cached items only.
type DigestService struct {
	users  ports.UserDirectory
	news   ports.NewsRepository
	sender ports.MailSender
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewDigestService builds the send path. loc is the zone that keys cached news dates.
func NewDigestService(users ports.UserDirectory, news ports.NewsRepository, sender ports.MailSender, loc *time.Location, logger *slog.Logger) *DigestService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DigestService{users: users, news: news, sender: sender, loc: loc, now: time.Now, logger: logger}
}

// BuildDigest renders the digest of user for date.
func (s *DigestService) BuildDigest(ctx context.Context, user domain.User, date string) (Digest, error) {
	subs, err := s.users.ActiveSubscriptions(ctx, user.ID)
	if err != nil {
		return Digest{}, fmt.Errorf("load subscriptions: %w", err)
	}

	view := digestView{Date: date, Email: user.Email}
	total := 0
	for _, sub := range subs {
		items, err := s.news.ListForDigest(ctx, sub.Topic, date, DigestItemsPerTopic)
		if err != nil {
			return Digest{}, fmt.Errorf("load items for %s: %w", sub.Topic, err)
		}
		if len(items) == 0 {
			continue
		}

		section := digestSection{Topic: sub.Topic}
		for _, item := range items {
			summary := item.Summary
			if sub.AlternateTone && item.SummaryAlternate != "" {
				summary = item.SummaryAlternate
			}
			section.Items = append(section.Items, digestItem{Title: item.Title, Summary: summary, URL: item.URL})
		}
		total += len(section.Items)
		view.Sections = append(view.Sections, section)
	}

	if total == 0 {
		return Digest{}, ErrNothingToSend
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, view); err != nil {
		return Digest{}, fmt.Errorf("render digest: %w", err)
	}

	return Digest{
		Subject: fmt.Sprintf("📰 Daily Digest - %s", date),
		HTML:    buf.String(),
		Items:   total,
	}, nil
}

// SendDigest builds and delivers the digest of user and records the send time.
func (s *DigestService) SendDigest(ctx context.Context, user domain.User, now time.Time) error {
	if s.sender == nil {
		metrics.RecordDigest("error")
		return ErrNoSender
	}

	date := now.In(s.loc).Format(domain.DateLayout)
	digest, err := s.BuildDigest(ctx, user, date)
	if errors.Is(err, ErrNothingToSend) {
		metrics.RecordDigest("empty")
		return err
	}
	if err != nil {
		metrics.RecordDigest("error")
		return err
	}

	if err := s.sender.Send(ctx, user.Email, digest.Subject, digest.HTML); err != nil {
		metrics.RecordDigest("error")
		return fmt.Errorf("send digest to %s: %w", user.Email, err)
	}

	sentAt := now.In(user.Schedule.Location(s.loc))
	if err := s.users.MarkDigestSent(ctx, user.ID, sentAt); err != nil {
		metrics.RecordDigest("error")
		return fmt.Errorf("mark digest sent: %w", err)
	}

	metrics.RecordDigest("sent")
	s.logger.Info("digest sent", "user_id", user.ID, "email", user.Email, "date", date, "items", digest.Items)
	return nil
}

// SendDigestNow delivers a digest to userID immediately, ignoring the schedule.
func (s *DigestService) SendDigestNow(ctx context.Context, userID int64) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	return s.SendDigest(ctx, user, s.now())
}
