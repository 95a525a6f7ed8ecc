package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Asia/Shanghai"
	configPathEnv   = "DIGEST_AGENT_CONFIG"
	dotenvPathEnv   = "DIGEST_AGENT_DOTENV"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Lease         LeaseConfig        `yaml:"lease"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Providers     ProviderConfig     `yaml:"providers"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	ML            MLConfig           `yaml:"ml"`
	Mail          MailConfig         `yaml:"mail"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig selects the record store: memory, sqlite3 or postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LeaseConfig tunes refresh arbitration. Backend "redis" moves leases out of the record store.
type LeaseConfig struct {
	Backend            string `yaml:"backend"`
	RedisAddr          string `yaml:"redisAddr"`
	MinIntervalMinutes int    `yaml:"minIntervalMinutes"`
	StaleAfterSeconds  int    `yaml:"staleAfterSeconds"`
}

// MinInterval as a duration.
func (l LeaseConfig) MinInterval() time.Duration {
	return time.Duration(l.MinIntervalMinutes) * time.Minute
}

// StaleAfter as a duration.
func (l LeaseConfig) StaleAfter() time.Duration {
	return time.Duration(l.StaleAfterSeconds) * time.Second
}

// SchedulerConfig defines when the sweeps run.
type SchedulerConfig struct {
	Timezone         string         `yaml:"timezone"`
	DailyHour        int            `yaml:"dailyHour"`
	DailyMinute      int            `yaml:"dailyMinute"`
	DigestInterval   time.Duration  `yaml:"digestInterval"`
	TopicConcurrency int            `yaml:"topicConcurrency"`
	location         *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProviderConfig groups settings for news sources.
type ProviderConfig struct {
	GNewsAPIKey      string              `yaml:"gnewsApiKey"`
	GNewsLang        string              `yaml:"gnewsLang"`
	GNewsCountry     string              `yaml:"gnewsCountry"`
	NewsDataAPIKey   string              `yaml:"newsdataApiKey"`
	NewsDataLanguage string              `yaml:"newsdataLanguage"`
	Timeout          time.Duration       `yaml:"timeout"`
	FeedTimeout      time.Duration       `yaml:"feedTimeout"`
	Order            []string            `yaml:"order"`
	Feeds            map[string][]string `yaml:"feeds"`
}

// EnrichmentConfig picks the summary and relevance backend: chat, ml or none.
type EnrichmentConfig struct {
	Backend           string        `yaml:"backend"`
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"apiKey"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	Timeout           time.Duration `yaml:"timeout"`
}

// MLConfig describes neural-service integration parameters.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// MailConfig configures the Resend and SMTP senders.
type MailConfig struct {
	ResendAPIKey string `yaml:"resendApiKey"`
	FromEmail    string `yaml:"fromEmail"`
	SMTPHost     string `yaml:"smtpHost"`
	SMTPPort     int    `yaml:"smtpPort"`
	SMTPUser     string `yaml:"smtpUser"`
	SMTPPassword string `yaml:"smtpPassword"`
}

// NotificationConfig encapsulates operator channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// Enabled reports whether sweep reports should be posted.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// HTTPConfig is the listen address of the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env (if present), YAML configuration (if present) and applies environment overrides.
func Load() (Config, error) {
	dotenv := os.Getenv(dotenvPathEnv)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot load %s: %v", dotenv, err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	cfg.fillDefaults()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite3", "postgres":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Lease.Backend {
	case "store", "redis":
	default:
		return fmt.Errorf("config: unknown lease backend %q", c.Lease.Backend)
	}
	if c.Lease.Backend == "redis" && c.Lease.RedisAddr == "" {
		return errors.New("config: lease backend redis requires redisAddr")
	}
	switch c.Enrichment.Backend {
	case "chat", "ml", "none":
	default:
		return fmt.Errorf("config: unknown enrichment backend %q", c.Enrichment.Backend)
	}
	if c.Scheduler.DailyHour < 0 || c.Scheduler.DailyHour > 23 || c.Scheduler.DailyMinute < 0 || c.Scheduler.DailyMinute > 59 {
		return fmt.Errorf("config: invalid daily time %02d:%02d", c.Scheduler.DailyHour, c.Scheduler.DailyMinute)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	texts := map[string]*string{
		"LOG_LEVEL":          &c.Logging.Level,
		"LOG_FORMAT":         &c.Logging.Format,
		"DATABASE_DRIVER":    &c.Database.Driver,
		"DATABASE_DSN":       &c.Database.DSN,
		"LEASE_BACKEND":      &c.Lease.Backend,
		"REDIS_ADDR":         &c.Lease.RedisAddr,
		"TIMEZONE":           &c.Scheduler.Timezone,
		"GNEWS_API_KEY":      &c.Providers.GNewsAPIKey,
		"NEWSDATA_API_KEY":   &c.Providers.NewsDataAPIKey,
		"ENRICHMENT_BACKEND": &c.Enrichment.Backend,
		"LLM_ENDPOINT":       &c.Enrichment.Endpoint,
		"LLM_MODEL":          &c.Enrichment.Model,
		"LLM_API_KEY":        &c.Enrichment.APIKey,
		"ML_INFERENCE_URL":   &c.ML.InferenceURL,
		"ML_API_KEY":         &c.ML.APIKey,
		"RESEND_API_KEY":     &c.Mail.ResendAPIKey,
		"FROM_EMAIL":         &c.Mail.FromEmail,
		"SMTP_HOST":          &c.Mail.SMTPHost,
		"SMTP_USER":          &c.Mail.SMTPUser,
		"SMTP_PASSWORD":      &c.Mail.SMTPPassword,
		"TELEGRAM_BOT_TOKEN": &c.Notifications.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Notifications.Telegram.ChatID,
		"HTTP_ADDR":          &c.HTTP.Addr,
	}
	for key, target := range texts {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	ints := map[string]*int{
		"SMTP_PORT":           &c.Mail.SMTPPort,
		"DAILY_UPDATE_HOUR":   &c.Scheduler.DailyHour,
		"DAILY_UPDATE_MINUTE": &c.Scheduler.DailyMinute,
		"LLM_RPM":             &c.Enrichment.RequestsPerMinute,
	}
	for key, target := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not an integer", key, v)
		}
		*target = n
	}
	return nil
}

// fillDefaults restores defaults that a YAML file blanked out.
func (c *Config) fillDefaults() {
	def := defaultConfig()
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" && c.Database.Driver == def.Database.Driver {
		c.Database.DSN = def.Database.DSN
	}
	if c.Lease.Backend == "" {
		c.Lease.Backend = def.Lease.Backend
	}
	if c.Lease.MinIntervalMinutes <= 0 {
		c.Lease.MinIntervalMinutes = def.Lease.MinIntervalMinutes
	}
	if c.Lease.StaleAfterSeconds <= 0 {
		c.Lease.StaleAfterSeconds = def.Lease.StaleAfterSeconds
	}
	if c.Scheduler.DigestInterval <= 0 {
		c.Scheduler.DigestInterval = def.Scheduler.DigestInterval
	}
	if c.Providers.Timeout <= 0 {
		c.Providers.Timeout = def.Providers.Timeout
	}
	if c.Providers.FeedTimeout <= 0 {
		c.Providers.FeedTimeout = def.Providers.FeedTimeout
	}
	if c.Enrichment.Backend == "" {
		c.Enrichment.Backend = def.Enrichment.Backend
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		tz = defaultTimezone
		if loc, err = time.LoadLocation(tz); err != nil {
			loc = time.UTC
		}
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "./daily_digest.db"},
		Lease: LeaseConfig{
			Backend:            "store",
			MinIntervalMinutes: 5,
			StaleAfterSeconds:  600,
		},
		Scheduler: SchedulerConfig{
			Timezone:         defaultTimezone,
			DailyHour:        8,
			DailyMinute:      0,
			DigestInterval:   time.Hour,
			TopicConcurrency: 1,
		},
		Providers: ProviderConfig{
			GNewsLang:        "zh",
			GNewsCountry:     "cn",
			NewsDataLanguage: "zh,en",
			Timeout:          10 * time.Second,
			FeedTimeout:      15 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			Backend:  "chat",
			Endpoint: "http://localhost:11434/v1/chat/completions",
			Model:    "qwen3:8b",
			Timeout:  60 * time.Second,
		},
		Mail: MailConfig{SMTPPort: 587},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}
