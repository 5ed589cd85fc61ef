package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/kalshiarb/internal/blob/s3"
	"github.com/alanyoungcy/kalshiarb/internal/cache/redis"
	"github.com/alanyoungcy/kalshiarb/internal/config"
	"github.com/alanyoungcy/kalshiarb/internal/crypto"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/metrics"
	"github.com/alanyoungcy/kalshiarb/internal/notify"
	"github.com/alanyoungcy/kalshiarb/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiarb/internal/server/handler"
	"github.com/alanyoungcy/kalshiarb/internal/store/postgres"
	"github.com/alanyoungcy/kalshiarb/internal/store/sqlite"
	"github.com/shopspring/decimal"
)

// Dependencies bundles every concrete dependency the modes use. Optional
// backends are nil when not configured.
type Dependencies struct {
	// Stores
	OpportunityStore  domain.OpportunityStore
	RelationshipStore domain.RelationshipStore

	// Redis
	RateLimiter domain.RateLimiter
	BookCache   domain.BookCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager

	// Blob storage
	Archiver domain.Archiver

	// Exchange
	Signer *crypto.RequestSigner
	Kalshi *kalshi.Client

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Checks are the dependency probes served by the health endpoint.
	Checks []handler.Check
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	return mode == "archive"
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
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Metrics: metrics.New()}

	// --- Store ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.RelationshipStore = postgres.NewRelationshipStore(pool)
		deps.Checks = append(deps.Checks, handler.Check{Name: "postgres", Ping: pgClient.Ping})
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		deps.OpportunityStore = sqlite.NewOpportunityStore(db)
		deps.RelationshipStore = sqlite.NewRelationshipStore(db)
		deps.Checks = append(deps.Checks, handler.Check{Name: "sqlite", Ping: db.Ping})
	}

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Kalshi.RateLimitPerSecond)
		deps.BookCache = redis.NewBookCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, redis.DefaultStreamLength)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Checks = append(deps.Checks, handler.Check{Name: "redis", Ping: redisClient.Ping})
	}

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(cfg.Mode) {
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
			return fail("s3", err)
		}
		if deps.OpportunityStore != nil {
			deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverConfig{
				Writer: s3blob.NewWriter(s3Client),
				Exists: s3blob.NewReader(s3Client),
				Store:  deps.OpportunityStore,
				Locks:  deps.LockManager,
				Prefix: cfg.S3.Prefix,
				Logger: logger,
			})
		}
		deps.Checks = append(deps.Checks, handler.Check{Name: "s3", Ping: s3Client.Health})
	}

	// --- Kalshi ---
	if cfg.Kalshi.APIKeyID != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			PrivateKeyPath:   cfg.Kalshi.RSAPrivateKeyPath,
			EncryptedKeyPath: cfg.Kalshi.EncryptedKeyPath,
			KeyPassword:      cfg.Kalshi.KeyPassword,
		})
		if err != nil {
			return fail("kalshi key", err)
		}
		deps.Signer = crypto.NewRequestSigner(cfg.Kalshi.APIKeyID, key)
	}
	deps.Kalshi = kalshi.NewClient(cfg.Kalshi.BaseURL, deps.Signer)
	deps.Kalshi.SetRequestInterval(cfg.Kalshi.RequestInterval.Duration)
	deps.Kalshi.SetMetrics(deps.Metrics)
	if deps.RateLimiter != nil && cfg.Kalshi.RateLimitPerSecond > 0 {
		deps.Kalshi.SetRateLimiter(deps.RateLimiter)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.WarnContext(ctx, "telegram notifications disabled", slog.String("error", err.Error()))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	minProfit := decimal.Zero
	if cfg.Notify.MinProfit != "" {
		minProfit, _ = decimal.NewFromString(cfg.Notify.MinProfit)
	}
	deps.Notifier = notify.NewNotifier(senders, minProfit, logger)

	return deps, cleanup, nil
}
