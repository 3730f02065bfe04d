package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PULSEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PULSEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Source ──
	setStr(&cfg.Source.BaseURL, "PULSEBOT_SOURCE_BASE_URL")
	setStr(&cfg.Source.APIKey, "PULSEBOT_SOURCE_API_KEY")
	setStr(&cfg.Source.Side, "PULSEBOT_SOURCE_SIDE")
	setDuration(&cfg.Source.PollInterval, "PULSEBOT_SOURCE_POLL_INTERVAL")
	setStringSlice(&cfg.Source.Products, "PULSEBOT_SOURCE_PRODUCTS")
	setStr(&cfg.Source.EncryptedKeyPath, "PULSEBOT_SOURCE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Source.KeyPassword, "PULSEBOT_SOURCE_KEY_PASSWORD")

	// ── Detector ──
	setInt(&cfg.Detector.WindowSize, "PULSEBOT_DETECTOR_WINDOW_SIZE")
	setInt(&cfg.Detector.MinGroupSize, "PULSEBOT_DETECTOR_MIN_GROUP_SIZE")
	setInt(&cfg.Detector.Workers, "PULSEBOT_DETECTOR_WORKERS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PULSEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PULSEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PULSEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PULSEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PULSEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PULSEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PULSEBOT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "PULSEBOT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "PULSEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PULSEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PULSEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PULSEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PULSEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PULSEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PULSEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PULSEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PULSEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PULSEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PULSEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PULSEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PULSEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PULSEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PULSEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PULSEBOT_S3_FORCE_PATH_STYLE")

	// ── Record ──
	setBool(&cfg.Record.Enabled, "PULSEBOT_RECORD_ENABLED")
	setStr(&cfg.Record.Prefix, "PULSEBOT_RECORD_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PULSEBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "PULSEBOT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "PULSEBOT_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PULSEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PULSEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PULSEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AuthToken, "PULSEBOT_SERVER_AUTH_TOKEN")
	setInt(&cfg.Server.RateLimit, "PULSEBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PULSEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PULSEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PULSEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PULSEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PULSEBOT_MODE")
	setStr(&cfg.LogLevel, "PULSEBOT_LOG_LEVEL")
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
