// Package config defines the top-level configuration for the Kalshi
// relationship and opportunity engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/arbitrage"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/fees"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KALSHIARB_* environment variables.
type Config struct {
	Kalshi   KalshiConfig   `toml:"kalshi" envPrefix:"KALSHI_"`
	Fees     FeesConfig     `toml:"fees" envPrefix:"FEES_"`
	Engine   EngineConfig   `toml:"engine" envPrefix:"ENGINE_"`
	Store    StoreConfig    `toml:"store" envPrefix:"STORE_"`
	Supabase SupabaseConfig `toml:"supabase" envPrefix:"SUPABASE_"`
	SQLite   SQLiteConfig   `toml:"sqlite" envPrefix:"SQLITE_"`
	Redis    RedisConfig    `toml:"redis" envPrefix:"REDIS_"`
	S3       S3Config       `toml:"s3" envPrefix:"S3_"`
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Notify   NotifyConfig   `toml:"notify" envPrefix:"NOTIFY_"`
	Mode     string         `toml:"mode" env:"MODE"`
	LogLevel string         `toml:"log_level" env:"LOG_LEVEL"`
}

// KalshiConfig holds Kalshi exchange API credentials and market selection.
type KalshiConfig struct {
	APIKeyID          string `toml:"api_key_id" env:"API_KEY_ID"`
	RSAPrivateKeyPath string `toml:"rsa_private_key_path" env:"RSA_PRIVATE_KEY_PATH"`
	// EncryptedKeyPath points at a PEM key sealed by crypto.KeyManager. When
	// set it takes precedence over RSAPrivateKeyPath.
	EncryptedKeyPath string   `toml:"encrypted_key_path" env:"ENCRYPTED_KEY_PATH"`
	KeyPassword      string   `toml:"key_password" env:"KEY_PASSWORD"`
	BaseURL          string   `toml:"base_url" env:"BASE_URL"`
	WSURL            string   `toml:"ws_url" env:"WS_URL"`
	Series           []string `toml:"series" env:"SERIES"`
	MaxMarkets       int      `toml:"max_markets" env:"MAX_MARKETS"`
	RequestInterval  duration `toml:"request_interval" env:"REQUEST_INTERVAL"`
	// RateLimitPerSecond bounds REST calls across processes when Redis is
	// configured. Zero disables the shared limiter.
	RateLimitPerSecond int `toml:"rate_limit_per_second" env:"RATE_LIMIT_PER_SECOND"`
}

// FeesConfig holds the static fee schedule. Rates are decimal strings.
type FeesConfig struct {
	GeneralRate         string   `toml:"general_rate" env:"GENERAL_RATE"`
	ReducedRate         string   `toml:"reduced_rate" env:"REDUCED_RATE"`
	MakerFeePerContract string   `toml:"maker_fee_per_contract" env:"MAKER_FEE_PER_CONTRACT"`
	RebateThreshold     string   `toml:"rebate_threshold" env:"REBATE_THRESHOLD"`
	ReducedRatePrefixes []string `toml:"reduced_rate_prefixes" env:"REDUCED_RATE_PREFIXES"`
	MakerFeeSeries      []string `toml:"maker_fee_series" env:"MAKER_FEE_SERIES"`
}

// EngineConfig tunes relationship discovery and opportunity evaluation.
type EngineConfig struct {
	MinProfit      string   `toml:"min_profit" env:"MIN_PROFIT"`
	MaxSize        int64    `toml:"max_size" env:"MAX_SIZE"`
	CheckDepth     bool     `toml:"check_depth" env:"CHECK_DEPTH"`
	MaxChainLength int      `toml:"max_chain_length" env:"MAX_CHAIN_LENGTH"`
	OpportunityTTL duration `toml:"opportunity_ttl" env:"OPPORTUNITY_TTL"`
	DedupWindow    duration `toml:"dedup_window" env:"DEDUP_WINDOW"`
	ScanInterval   duration `toml:"scan_interval" env:"SCAN_INTERVAL"`
	Strategies     []string `toml:"strategies" env:"STRATEGIES"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is one of "postgres", "sqlite" or "none".
	Driver string `toml:"driver" env:"DRIVER"`
	// RetentionDays is how long opportunities stay in the store before the
	// archive job moves them to S3.
	RetentionDays int `toml:"retention_days" env:"RETENTION_DAYS"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn" env:"DSN"`
	Host          string `toml:"host" env:"HOST"`
	Port          int    `toml:"port" env:"PORT"`
	Database      string `toml:"database" env:"DATABASE"`
	User          string `toml:"user" env:"USER"`
	Password      string `toml:"password" env:"PASSWORD"`
	SSLMode       string `toml:"ssl_mode" env:"SSL_MODE"`
	PoolMaxConns  int    `toml:"pool_max_conns" env:"POOL_MAX_CONNS"`
	PoolMinConns  int    `toml:"pool_min_conns" env:"POOL_MIN_CONNS"`
	RunMigrations bool   `toml:"run_migrations" env:"RUN_MIGRATIONS"`
}

// SQLiteConfig holds the local database file location.
type SQLiteConfig struct {
	Path string `toml:"path" env:"PATH"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables Redis.
type RedisConfig struct {
	Addr       string `toml:"addr" env:"ADDR"`
	Password   string `toml:"password" env:"PASSWORD"`
	DB         int    `toml:"db" env:"DB"`
	PoolSize   int    `toml:"pool_size" env:"POOL_SIZE"`
	MaxRetries int    `toml:"max_retries" env:"MAX_RETRIES"`
	TLSEnabled bool   `toml:"tls_enabled" env:"TLS_ENABLED"`
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint" env:"ENDPOINT"`
	Region         string `toml:"region" env:"REGION"`
	Bucket         string `toml:"bucket" env:"BUCKET"`
	Prefix         string `toml:"prefix" env:"PREFIX"`
	AccessKey      string `toml:"access_key" env:"ACCESS_KEY"`
	SecretKey      string `toml:"secret_key" env:"SECRET_KEY"`
	UseSSL         bool   `toml:"use_ssl" env:"USE_SSL"`
	ForcePathStyle bool   `toml:"force_path_style" env:"FORCE_PATH_STYLE"`
}

// duration is a wrapper around time.Duration that supports TOML and env string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled" env:"ENABLED"`
	Port        int      `toml:"port" env:"PORT"`
	APIKey      string   `toml:"api_key" env:"API_KEY"`
	CORSOrigins []string `toml:"cors_origins" env:"CORS_ORIGINS"`
	// RateLimitPerMinute caps API requests per client IP when Redis is
	// configured. Zero disables the limit.
	RateLimitPerMinute int `toml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token" env:"TELEGRAM_TOKEN"`
	TelegramChatID    int64  `toml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
	DiscordWebhookURL string `toml:"discord_webhook_url" env:"DISCORD_WEBHOOK_URL"`
	// MinProfit filters notifications; opportunities below it are only stored.
	MinProfit string `toml:"min_profit" env:"MIN_PROFIT"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL:            "https://api.elections.kalshi.com/trade-api/v2",
			WSURL:              "wss://api.elections.kalshi.com/trade-api/ws/v2",
			Series:             []string{"KXFED", "INX", "NASDAQ100"},
			MaxMarkets:         500,
			RequestInterval:    duration{100 * time.Millisecond},
			RateLimitPerSecond: 10,
		},
		Fees: FeesConfig{
			GeneralRate:         "0.07",
			ReducedRate:         "0.035",
			MakerFeePerContract: "0.0025",
			RebateThreshold:     "10",
			ReducedRatePrefixes: append([]string(nil), fees.DefaultReducedRatePrefixes...),
			MakerFeeSeries:      append([]string(nil), fees.DefaultMakerFeeSeries...),
		},
		Engine: EngineConfig{
			MinProfit:      "0.50",
			MaxSize:        arbitrage.DefaultSize,
			CheckDepth:     false,
			MaxChainLength: 3,
			OpportunityTTL: duration{5 * time.Minute},
			DedupWindow:    duration{time.Minute},
			ScanInterval:   duration{30 * time.Second},
			Strategies:     []string{"subset", "disjoint", "chain"},
		},
		Store: StoreConfig{
			Driver:        "sqlite",
			RetentionDays: 30,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "data/kalshiarb.db",
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Prefix:         "opportunities",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 120,
		},
		Notify: NotifyConfig{
			MinProfit: "1.00",
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"stream":  true,
	"server":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"none":     true,
}

var validStrategies = map[string]bool{
	"subset":   true,
	"disjoint": true,
	"chain":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, stream, server, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Mode == "stream" && c.Kalshi.WSURL == "" {
		errs = append(errs, "kalshi: ws_url must not be empty for mode stream")
	}
	if c.Mode == "stream" && c.Kalshi.APIKeyID == "" {
		errs = append(errs, "kalshi: api_key_id is required for mode stream")
	}
	if c.Kalshi.APIKeyID != "" && c.Kalshi.RSAPrivateKeyPath == "" && c.Kalshi.EncryptedKeyPath == "" {
		errs = append(errs, "kalshi: either rsa_private_key_path or encrypted_key_path must be set with api_key_id")
	}
	if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
		errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
	}
	if c.Kalshi.MaxMarkets < 1 {
		errs = append(errs, "kalshi: max_markets must be >= 1")
	}
	if c.Kalshi.RequestInterval.Duration < 0 {
		errs = append(errs, "kalshi: request_interval must not be negative")
	}
	if c.Kalshi.RateLimitPerSecond < 0 {
		errs = append(errs, "kalshi: rate_limit_per_second must not be negative")
	}

	// Fees
	for _, f := range []struct{ name, value string }{
		{"general_rate", c.Fees.GeneralRate},
		{"reduced_rate", c.Fees.ReducedRate},
		{"maker_fee_per_contract", c.Fees.MakerFeePerContract},
		{"rebate_threshold", c.Fees.RebateThreshold},
	} {
		if d, err := decimal.NewFromString(f.value); err != nil {
			errs = append(errs, fmt.Sprintf("fees: %s %q is not a decimal", f.name, f.value))
		} else if d.IsNegative() {
			errs = append(errs, fmt.Sprintf("fees: %s must not be negative", f.name))
		}
	}

	// Engine
	if _, err := decimal.NewFromString(c.Engine.MinProfit); err != nil {
		errs = append(errs, fmt.Sprintf("engine: min_profit %q is not a decimal", c.Engine.MinProfit))
	}
	if c.Engine.MaxSize < 1 {
		errs = append(errs, "engine: max_size must be >= 1")
	}
	if c.Engine.MaxChainLength < 2 {
		errs = append(errs, "engine: max_chain_length must be >= 2")
	}
	if len(c.Engine.Strategies) == 0 {
		errs = append(errs, "engine: at least one strategy is required")
	}
	for _, s := range c.Engine.Strategies {
		if !validStrategies[s] {
			errs = append(errs, fmt.Sprintf("engine: unknown strategy %q (valid: subset, disjoint, chain)", s))
		}
	}
	if c.Engine.ScanInterval.Duration <= 0 {
		errs = append(errs, "engine: scan_interval must be > 0")
	}

	// Store
	if !validDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, sqlite, none)", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if c.Store.Driver == "sqlite" && c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}
	if c.Mode == "archive" {
		if c.Store.Driver == "none" {
			errs = append(errs, "store: archive mode needs a store driver")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket is required for mode archive")
		}
		if c.Store.RetentionDays < 1 {
			errs = append(errs, "store: retention_days must be >= 1 for mode archive")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, "server: rate_limit_per_minute must be >= 0")
	}

	// Notify
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}
	if c.Notify.MinProfit != "" {
		if _, err := decimal.NewFromString(c.Notify.MinProfit); err != nil {
			errs = append(errs, fmt.Sprintf("notify: min_profit %q is not a decimal", c.Notify.MinProfit))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// FeeSchedule builds the fee schedule described by the fees section. Call it
// after Validate; unparsable rates fall back to zero.
func (c *Config) FeeSchedule() fees.Schedule {
	return fees.NewSchedule(
		decimalOrZero(c.Fees.GeneralRate),
		decimalOrZero(c.Fees.ReducedRate),
		decimalOrZero(c.Fees.MakerFeePerContract),
		decimalOrZero(c.Fees.RebateThreshold),
		c.Fees.ReducedRatePrefixes,
		c.Fees.MakerFeeSeries,
	)
}

// EvaluatorParams returns the evaluator parameters from the engine section.
func (c *Config) EvaluatorParams() arbitrage.Params {
	return arbitrage.Params{
		MinProfit:  decimalOrZero(c.Engine.MinProfit),
		MaxSize:    c.Engine.MaxSize,
		CheckDepth: c.Engine.CheckDepth,
		TTL:        c.Engine.OpportunityTTL.Duration,
	}
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
