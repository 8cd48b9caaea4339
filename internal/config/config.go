// Package config defines the engine's top-level configuration and its
// validation rules. Values come from a TOML file layered over built-in
// defaults, then CROSSARB_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Engine     EngineConfig     `toml:"engine"`
	Feed       FeedConfig       `toml:"feed"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Wallet     WalletConfig     `toml:"wallet"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
}

// CostConfig is one venue's execution cost model. Effective prices are
// raw * (1 + fee_rate + slippage).
type CostConfig struct {
	FeeRate  float64 `toml:"fee_rate"`
	Slippage float64 `toml:"slippage"`
}

// EngineConfig holds detection, sizing and reconciliation parameters.
type EngineConfig struct {
	InitialBalanceUSD       float64  `toml:"initial_balance_usd"`
	TargetUnits             float64  `toml:"target_units"`
	MinROIPct               float64  `toml:"min_roi_pct"`
	MaxPositionUSD          float64  `toml:"max_position_usd"`
	MaxDailyTrades          int      `toml:"max_daily_trades"`
	DailyLossLimitUSD       float64  `toml:"daily_loss_limit_usd"`
	LiquidityThresholdUnits float64  `toml:"liquidity_threshold_units"`
	LiquidityDiscount       float64  `toml:"liquidity_discount"`
	CooldownTTL             duration `toml:"cooldown_ttl"`
	SweepInterval           duration `toml:"sweep_interval"`
	SettlementTimeout       duration `toml:"settlement_timeout"`
	ReconcileInterval       duration `toml:"reconcile_interval"`

	// Costs is keyed by venue name ("kalshi", "polymarket").
	Costs map[string]CostConfig `toml:"costs"`
}

// FeedConfig selects where matched pairs come from.
type FeedConfig struct {
	// Source is "redis" (stream via the pair bus) or "ws" (push feed).
	Source string `toml:"source"`
	WSURL  string `toml:"ws_url"`
	Stream string `toml:"stream"`
	Buffer int    `toml:"buffer"`
}

// LedgerConfig selects ledger persistence.
type LedgerConfig struct {
	// Backend is "file" or "postgres".
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// WalletConfig holds the Ethereum wallet key used for Polymarket signing.
// Either the raw key or an encrypted key file must be set in live mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// KalshiConfig holds Kalshi API credentials and endpoint.
type KalshiConfig struct {
	APIKeyID       string `toml:"api_key_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	// BaseURL is the host root; the trade API prefix is appended by the
	// client.
	BaseURL string `toml:"base_url"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	ChainID   int    `toml:"chain_id"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// snapshot store and trade event journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters plus the budgets for the
// pieces built on it: the venue rate limiter, the settlement cache and the
// pair stream.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`

	SettlementResolvedTTL   duration `toml:"settlement_resolved_ttl"`
	SettlementUnresolvedTTL duration `toml:"settlement_unresolved_ttl"`
}

// S3Config holds S3-compatible object storage parameters for ledger
// archiving.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	SnapshotInterval duration `toml:"snapshot_interval"`
	SnapshotKeep     int      `toml:"snapshot_keep"`
	// RestoreOnMissing pulls the latest archived snapshot when the local
	// ledger record does not exist yet.
	RestoreOnMissing bool `toml:"restore_on_missing"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the stock parameters: paper
// trading against a local Redis matcher stream, file-backed ledger, and the
// standard venue cost models.
func Defaults() Config {
	return Config{
		Mode:     "simulate",
		LogLevel: "info",
		Engine: EngineConfig{
			InitialBalanceUSD:       10000,
			TargetUnits:             100,
			MinROIPct:               0,
			MaxPositionUSD:          1000,
			MaxDailyTrades:          10,
			DailyLossLimitUSD:       500,
			LiquidityThresholdUnits: 200,
			LiquidityDiscount:       0.01,
			CooldownTTL:             duration{60 * time.Second},
			SweepInterval:           duration{30 * time.Second},
			SettlementTimeout:       duration{24 * time.Hour},
			ReconcileInterval:       duration{5 * time.Minute},
			Costs: map[string]CostConfig{
				"kalshi":     {FeeRate: 0.07, Slippage: 0.005},
				"polymarket": {FeeRate: 0.02, Slippage: 0.005},
			},
		},
		Feed: FeedConfig{
			Source: "redis",
			Stream: "crossarb:pairs",
			Buffer: 64,
		},
		Ledger: LedgerConfig{
			Backend: "file",
			Path:    "data/ledger.json",
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com",
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			ChainID:   137,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:                 true,
			Addr:                    "localhost:6379",
			DB:                      0,
			PoolSize:                20,
			MaxRetries:              3,
			TLSEnabled:              false,
			RateLimit:               10,
			RateWindow:              duration{time.Second},
			SettlementResolvedTTL:   duration{24 * time.Hour},
			SettlementUnresolvedTTL: duration{30 * time.Second},
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "crossarb-data",
			UseSSL:           false,
			ForcePathStyle:   true,
			SnapshotInterval: duration{time.Hour},
			SnapshotKeep:     24,
			RestoreOnMissing: true,
		},
		Notify: NotifyConfig{
			Events: []string{"placed", "settled", "incomplete", "compensation_failed"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":     true,
	"simulate": true,
	"state":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, simulate, state)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.InitialBalanceUSD <= 0 {
		errs = append(errs, "engine: initial_balance_usd must be > 0")
	}
	if c.Engine.TargetUnits <= 0 {
		errs = append(errs, "engine: target_units must be > 0")
	}
	if c.Engine.MinROIPct < 0 {
		errs = append(errs, "engine: min_roi_pct must be >= 0")
	}
	if c.Engine.MaxPositionUSD <= 0 {
		errs = append(errs, "engine: max_position_usd must be > 0")
	}
	if c.Engine.MaxDailyTrades < 1 {
		errs = append(errs, "engine: max_daily_trades must be >= 1")
	}
	if c.Engine.DailyLossLimitUSD <= 0 {
		errs = append(errs, "engine: daily_loss_limit_usd must be > 0")
	}
	if c.Engine.LiquidityDiscount < 0 || c.Engine.LiquidityDiscount >= 1 {
		errs = append(errs, "engine: liquidity_discount must be in [0, 1)")
	}
	for _, venue := range []string{"kalshi", "polymarket"} {
		cost, ok := c.Engine.Costs[venue]
		if !ok {
			errs = append(errs, fmt.Sprintf("engine: costs.%s must be configured", venue))
			continue
		}
		if cost.FeeRate < 0 || cost.Slippage < 0 {
			errs = append(errs, fmt.Sprintf("engine: costs.%s fee_rate and slippage must be >= 0", venue))
		}
	}

	// Feed
	switch c.Feed.Source {
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "feed: source \"redis\" requires redis.enabled")
		}
	case "ws":
		if c.Feed.WSURL == "" {
			errs = append(errs, "feed: ws_url must be set when source is \"ws\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: redis, ws)", c.Feed.Source))
	}
	if c.Feed.Buffer < 1 {
		errs = append(errs, "feed: buffer must be >= 1")
	}

	// Ledger
	switch c.Ledger.Backend {
	case "file":
		if c.Ledger.Path == "" {
			errs = append(errs, "ledger: path must be set when backend is \"file\"")
		}
	case "postgres":
		if !c.Postgres.Enabled {
			errs = append(errs, "ledger: backend \"postgres\" requires postgres.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: file, postgres)", c.Ledger.Backend))
	}

	// Live trading needs real credentials on both venues.
	if mode == "live" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live mode")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Kalshi.APIKeyID == "" {
			errs = append(errs, "kalshi: api_key_id is required for live mode")
		}
		if c.Kalshi.PrivateKeyPath == "" {
			errs = append(errs, "kalshi: private_key_path is required for live mode")
		}
	}
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.RateLimit < 1 {
			errs = append(errs, "redis: rate_limit must be >= 1")
		}
		if c.Redis.RateWindow.Duration <= 0 {
			errs = append(errs, "redis: rate_window must be positive")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.SnapshotKeep < 1 {
			errs = append(errs, "s3: snapshot_keep must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
