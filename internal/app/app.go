package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"DigestAgent/internal/config"
	"DigestAgent/internal/domain"
	"DigestAgent/internal/httpapi"
	"DigestAgent/internal/infrastructure/llm"
	"DigestAgent/internal/infrastructure/mail"
	"DigestAgent/internal/infrastructure/memstore"
	"DigestAgent/internal/infrastructure/ml"
	"DigestAgent/internal/infrastructure/parser"
	"DigestAgent/internal/infrastructure/redislease"
	"DigestAgent/internal/infrastructure/scheduler"
	"DigestAgent/internal/infrastructure/storage"
	"DigestAgent/internal/infrastructure/telegram"
	"DigestAgent/internal/lease"
	"DigestAgent/internal/logging"
	"DigestAgent/internal/ports"
	"DigestAgent/internal/scanner"
	"DigestAgent/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// recordStore is what both the SQL and the in-memory stores provide.
type recordStore interface {
	ports.LeaseStore
	ports.NewsRepository
	ports.UserDirectory
	ports.SystemLogWriter
	ports.SystemLogReader
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     recordStore
	closers   []io.Closer
	refresher *usecase.Refresher
	digests   *usecase.DigestService
	driver    *usecase.Driver
	server    *echo.Echo
}

// New opens the stores and builds every component. Close releases them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	app := &Application{cfg: cfg, logger: baseLogger}
	loc := cfg.Scheduler.Location()

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	var leaseStore ports.LeaseStore = app.store
	if cfg.Lease.Backend == "redis" {
		redisStore, err := redislease.Dial(ctx, cfg.Lease.RedisAddr)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("lease backend: %w", err)
		}
		app.closers = append(app.closers, redisStore)
		leaseStore = redisStore
	}

	leases := lease.NewManager(leaseStore, lease.Options{
		MinInterval: cfg.Lease.MinInterval(),
		StaleAfter:  cfg.Lease.StaleAfter(),
	}, baseLogger.With("component", "lease"))

	source := parser.NewStrategySource(app.registry(), cfg.Providers.Order, baseLogger.With("component", "source"))
	enrichment := usecase.NewEnrichmentService(app.enricherFactory(), baseLogger.With("component", "enrichment"))

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Source:     source,
		News:       app.store,
		Enrichment: enrichment,
		Logger:     baseLogger.With("component", "orchestrator"),
	})
	app.refresher = usecase.NewRefresher(leases, orchestrator, baseLogger.With("component", "refresher"))

	app.digests = usecase.NewDigestService(app.store, app.store, app.mailSender(), loc, baseLogger.With("component", "digest"))

	var reports ports.ReportPublisher
	if cfg.Notifications.Telegram.Enabled() {
		tg := cfg.Notifications.Telegram
		reports = telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.APIBase)
	}

	app.driver = usecase.NewDriver(usecase.DriverDeps{
		Refresher:        app.refresher,
		Digests:          app.digests,
		Users:            app.store,
		Logs:             app.store,
		Reports:          reports,
		Daily:            scheduler.NewDailyScheduler(cfg.Scheduler.DailyHour, cfg.Scheduler.DailyMinute, loc),
		Hourly:           scheduler.NewIntervalScheduler(cfg.Scheduler.DigestInterval, loc),
		Location:         loc,
		TopicConcurrency: cfg.Scheduler.TopicConcurrency,
		Logger:           baseLogger.With("component", "driver"),
	})

	app.server = httpapi.NewServer(httpapi.Deps{
		Refresher: app.refresher,
		Users:     app.store,
		News:      app.store,
		Logs:      app.store,
		Location:  loc,
		Logger:    baseLogger.With("component", "http"),
	})

	return app, nil
}

func (a *Application) openStore(ctx context.Context) error {
	if a.cfg.Database.Driver == "memory" {
		a.logger.Warn("using in-memory record store, nothing survives a restart")
		a.store = memstore.New()
		return nil
	}
	store, err := storage.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)
	return nil
}

func (a *Application) registry() *scanner.Registry {
	p := a.cfg.Providers
	client := &http.Client{}

	registry := scanner.NewRegistry()
	if p.GNewsAPIKey != "" {
		registry.Register(parser.NewGNewsProvider(client, parser.GNewsOptions{
			APIKey:  p.GNewsAPIKey,
			Lang:    p.GNewsLang,
			Country: p.GNewsCountry,
			Timeout: p.Timeout,
		}))
	}
	if p.NewsDataAPIKey != "" {
		registry.Register(parser.NewNewsDataProvider(client, parser.NewsDataOptions{
			APIKey:   p.NewsDataAPIKey,
			Language: p.NewsDataLanguage,
			Timeout:  p.Timeout,
		}))
	}

	curated := p.Feeds
	if len(curated) == 0 {
		curated = parser.DefaultFeeds()
	}
	catalog := parser.NewCatalog(curated, a.store, a.logger.With("component", "catalog"))
	registry.Register(parser.NewFeedProvider(catalog, client, p.FeedTimeout, a.logger.With("component", "feeds")))
	return registry
}

func (a *Application) enricherFactory() usecase.EnricherFactory {
	e := a.cfg.Enrichment
	switch e.Backend {
	case "chat":
		return func() (ports.Enricher, error) {
			if e.Model == "" {
				return nil, errors.New("chat enrichment requires a model")
			}
			return llm.NewEnricher(llm.NewChatGPTClient(llm.Options{
				Endpoint:          e.Endpoint,
				Model:             e.Model,
				APIKey:            e.APIKey,
				RequestsPerMinute: e.RequestsPerMinute,
				Timeout:           e.Timeout,
			})), nil
		}
	case "ml":
		m := a.cfg.ML
		return func() (ports.Enricher, error) {
			if m.InferenceURL == "" {
				return nil, errors.New("ml enrichment requires inferenceUrl")
			}
			return ml.NewClient(m.InferenceURL, m.APIKey, e.Timeout), nil
		}
	default:
		return nil
	}
}

func (a *Application) mailSender() ports.MailSender {
	m := a.cfg.Mail
	chain := mail.NewChain(a.logger.With("component", "mail")).
		With("resend", mail.NewResendSender(m.ResendAPIKey, m.FromEmail, "")).
		With("smtp", mail.NewSMTPSender(m.SMTPHost, m.SMTPPort, m.SMTPUser, m.SMTPPassword, m.FromEmail))
	if !chain.Configured() {
		a.logger.Warn("no mail sender configured, digests will fail to send")
	}
	return chain
}

// Run starts the sweeps and the HTTP server and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.driver.Start(gctx); err != nil {
			return fmt.Errorf("start driver: %w", err)
		}
		a.logger.Info("sweeps scheduled",
			"daily", fmt.Sprintf("%02d:%02d", a.cfg.Scheduler.DailyHour, a.cfg.Scheduler.DailyMinute),
			"digestInterval", a.cfg.Scheduler.DigestInterval,
			"timezone", a.cfg.Scheduler.Timezone)
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.driver.Stop(stopCtx)
	})

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		if err := a.server.Start(a.cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.refresher.Wait()
	return err
}

// RefreshNow runs a lease-guarded refresh for each topic in turn and waits for it.
func (a *Application) RefreshNow(ctx context.Context, topics []string, date string) ([]domain.RefreshOutcome, error) {
	if date == "" {
		date = time.Now().In(a.cfg.Scheduler.Location()).Format(domain.DateLayout)
	}
	outcomes := make([]domain.RefreshOutcome, 0, len(topics))
	for _, topic := range topics {
		outcome, err := a.refresher.Refresh(ctx, topic, date)
		if err != nil {
			return outcomes, fmt.Errorf("refresh %s: %w", topic, err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Sweep runs one sweep immediately: "daily" ingests, "hourly" sends due digests.
func (a *Application) Sweep(ctx context.Context, kind string) (domain.SweepReport, error) {
	now := time.Now().In(a.cfg.Scheduler.Location())
	switch kind {
	case "daily":
		return a.driver.DailySweep(ctx, now), nil
	case "hourly":
		return a.driver.HourlySweep(ctx, now), nil
	default:
		return domain.SweepReport{}, fmt.Errorf("unknown sweep %q (want daily or hourly)", kind)
	}
}

// Status reports the lease state of topic on date (today when empty).
func (a *Application) Status(ctx context.Context, topic, date string) (usecase.LeaseStatus, error) {
	if date == "" {
		date = time.Now().In(a.cfg.Scheduler.Location()).Format(domain.DateLayout)
	}
	return a.refresher.GetLeaseStatus(ctx, topic, date)
}

// SendDigest mails userID a digest right away, ignoring the schedule.
func (a *Application) SendDigest(ctx context.Context, userID int64) error {
	return a.digests.SendDigestNow(ctx, userID)
}

// Close releases database and Redis connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
