package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it over the built-in
// defaults, applies CROSSARB_* environment overrides, and returns the final
// Config. An empty path skips the file and uses defaults plus environment.
// The returned Config has NOT been validated; callers run Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env if present; a missing file is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding fields when a variable is set. Operators
// inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")

	// Engine
	setFloat64(&cfg.Engine.InitialBalanceUSD, "CROSSARB_ENGINE_INITIAL_BALANCE_USD")
	setFloat64(&cfg.Engine.TargetUnits, "CROSSARB_ENGINE_TARGET_UNITS")
	setFloat64(&cfg.Engine.MinROIPct, "CROSSARB_ENGINE_MIN_ROI_PCT")
	setFloat64(&cfg.Engine.MaxPositionUSD, "CROSSARB_ENGINE_MAX_POSITION_USD")
	setInt(&cfg.Engine.MaxDailyTrades, "CROSSARB_ENGINE_MAX_DAILY_TRADES")
	setFloat64(&cfg.Engine.DailyLossLimitUSD, "CROSSARB_ENGINE_DAILY_LOSS_LIMIT_USD")
	setFloat64(&cfg.Engine.LiquidityThresholdUnits, "CROSSARB_ENGINE_LIQUIDITY_THRESHOLD_UNITS")
	setFloat64(&cfg.Engine.LiquidityDiscount, "CROSSARB_ENGINE_LIQUIDITY_DISCOUNT")
	setDuration(&cfg.Engine.CooldownTTL, "CROSSARB_ENGINE_COOLDOWN_TTL")
	setDuration(&cfg.Engine.SweepInterval, "CROSSARB_ENGINE_SWEEP_INTERVAL")
	setDuration(&cfg.Engine.SettlementTimeout, "CROSSARB_ENGINE_SETTLEMENT_TIMEOUT")
	setDuration(&cfg.Engine.ReconcileInterval, "CROSSARB_ENGINE_RECONCILE_INTERVAL")

	// Feed
	setStr(&cfg.Feed.Source, "CROSSARB_FEED_SOURCE")
	setStr(&cfg.Feed.WSURL, "CROSSARB_FEED_WS_URL")
	setStr(&cfg.Feed.Stream, "CROSSARB_FEED_STREAM")
	setInt(&cfg.Feed.Buffer, "CROSSARB_FEED_BUFFER")

	// Ledger
	setStr(&cfg.Ledger.Backend, "CROSSARB_LEDGER_BACKEND")
	setStr(&cfg.Ledger.Path, "CROSSARB_LEDGER_PATH")

	// Wallet
	setStr(&cfg.Wallet.PrivateKey, "CROSSARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CROSSARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CROSSARB_WALLET_KEY_PASSWORD")

	// Kalshi
	setStr(&cfg.Kalshi.APIKeyID, "CROSSARB_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKeyPath, "CROSSARB_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "CROSSARB_KALSHI_BASE_URL")

	// Polymarket
	setStr(&cfg.Polymarket.ClobHost, "CROSSARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "CROSSARB_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.ChainID, "CROSSARB_POLYMARKET_CHAIN_ID")

	// Postgres
	setBool(&cfg.Postgres.Enabled, "CROSSARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.RateLimit, "CROSSARB_REDIS_RATE_LIMIT")
	setDuration(&cfg.Redis.RateWindow, "CROSSARB_REDIS_RATE_WINDOW")
	setDuration(&cfg.Redis.SettlementResolvedTTL, "CROSSARB_REDIS_SETTLEMENT_RESOLVED_TTL")
	setDuration(&cfg.Redis.SettlementUnresolvedTTL, "CROSSARB_REDIS_SETTLEMENT_UNRESOLVED_TTL")

	// S3
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.SnapshotInterval, "CROSSARB_S3_SNAPSHOT_INTERVAL")
	setInt(&cfg.S3.SnapshotKeep, "CROSSARB_S3_SNAPSHOT_KEEP")
	setBool(&cfg.S3.RestoreOnMissing, "CROSSARB_S3_RESTORE_ON_MISSING")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
