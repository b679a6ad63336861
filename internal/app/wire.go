package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/biathlonbet/internal/blob/s3"
	cachemem "github.com/alanyoungcy/biathlonbet/internal/cache/memory"
	"github.com/alanyoungcy/biathlonbet/internal/cache/redis"
	"github.com/alanyoungcy/biathlonbet/internal/config"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/notify"
	"github.com/alanyoungcy/biathlonbet/internal/server/handler"
	"github.com/alanyoungcy/biathlonbet/internal/store/memory"
	"github.com/alanyoungcy/biathlonbet/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	RoundStore      domain.RoundStore
	WagerStore      domain.WagerStore
	SettlementStore domain.SettlementStore
	CaptureStore    domain.CaptureStore
	AuditStore      domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage; nil when S3 is disabled. Writes go through Archiver.
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Migrate applies pending schema migrations; nil for the memory store.
	Migrate func(ctx context.Context) ([]string, error)

	// HealthChecks probes each external dependency.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- Stores ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Migrate = pgClient.RunMigrations

		// Migrate mode applies migrations itself and reports them.
		if cfg.Postgres.RunMigrations && cfg.Mode != "migrate" {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: migrations applied", slog.Any("migrations", applied))
			}
		}

		pool := pgClient.Pool()
		deps.RoundStore = postgres.NewRoundStore(pool)
		deps.WagerStore = postgres.NewWagerStore(pool)
		deps.SettlementStore = postgres.NewSettlementStore(pool)
		deps.CaptureStore = postgres.NewCaptureStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pool.Ping

	case "memory":
		store := memory.New()
		deps.RoundStore = store
		deps.WagerStore = store
		deps.SettlementStore = store
		deps.AuditStore = store
		deps.CaptureStore = memory.NewCaptureStore()
		logger.WarnContext(ctx, "wire: using in-memory store; state is lost on restart")

	default:
		return nil, nil, fmt.Errorf("wire: unknown store driver %q", cfg.Store.Driver)
	}

	// --- Redis, or in-process stand-ins ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		streamMaxLen := cfg.Redis.StreamMaxLen
		if streamMaxLen <= 0 {
			streamMaxLen = redis.DefaultStreamMaxLen
		}
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, streamMaxLen)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.RateLimiter = cachemem.NewRateLimiter()
		deps.LockManager = cachemem.NewLockManager()
		deps.SignalBus = cachemem.NewSignalBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(writer, reader, int64(cfg.S3.MultipartThresholdMB)<<20)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
