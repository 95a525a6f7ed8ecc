package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestAgent/internal/config"
	"DigestAgent/internal/domain"
)

func memoryConfig() config.Config {
	return config.Config{
		Database:   config.DatabaseConfig{Driver: "memory"},
		Lease:      config.LeaseConfig{Backend: "store", MinIntervalMinutes: 5, StaleAfterSeconds: 600},
		Scheduler:  config.SchedulerConfig{DailyHour: 8, DigestInterval: time.Hour},
		Enrichment: config.EnrichmentConfig{Backend: "none"},
		HTTP:       config.HTTPConfig{Addr: "127.0.0.1:0"},
	}
}

func TestNewWiresMemoryStore(t *testing.T) {
	ctx := context.Background()
	application, err := New(ctx, memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	status, err := application.Status(ctx, "AI", "2025-03-10")
	require.NoError(t, err)
	assert.False(t, status.IsLeased)
	assert.Nil(t, status.LastRefreshedAt)

	report, err := application.Sweep(ctx, "hourly")
	require.NoError(t, err)
	assert.Equal(t, domain.SweepDigest, report.Kind)
	assert.Zero(t, report.Processed)

	_, err = application.Sweep(ctx, "weekly")
	assert.Error(t, err)
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.Lease.Backend = "redis"
	cfg.Lease.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestEnricherFactoryByBackend(t *testing.T) {
	application := &Application{cfg: memoryConfig()}
	assert.Nil(t, application.enricherFactory())

	application.cfg.Enrichment.Backend = "ml"
	factory := application.enricherFactory()
	require.NotNil(t, factory)
	_, err := factory()
	assert.Error(t, err, "ml backend needs an inference url")

	application.cfg.ML.InferenceURL = "http://localhost:9000"
	backend, err := application.enricherFactory()()
	require.NoError(t, err)
	assert.NotNil(t, backend)

	application.cfg.Enrichment = config.EnrichmentConfig{Backend: "chat", Model: "qwen3:8b"}
	backend, err = application.enricherFactory()()
	require.NoError(t, err)
	assert.NotNil(t, backend)
}
