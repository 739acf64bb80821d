package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COMPACTD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known COMPACTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Signer ──
	setStr(&cfg.Signer.PrivateKey, "COMPACTD_PRIVATE_KEY")
	setStr(&cfg.Signer.EncryptedKeyPath, "COMPACTD_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signer.KeyPassword, "COMPACTD_KEY_PASSWORD")
	setStr(&cfg.Signer.AllocatorAddress, "COMPACTD_ALLOCATOR_ADDRESS")
	setBool(&cfg.Signer.SkipSigningVerification, "COMPACTD_SKIP_SIGNING_VERIFICATION")

	// ── Indexer ──
	setStr(&cfg.Indexer.URL, "COMPACTD_INDEXER_URL")
	setStr(&cfg.Indexer.APIKey, "COMPACTD_INDEXER_API_KEY")

	// ── Database ──
	setStr(&cfg.Database.DSN, "COMPACTD_DATABASE_URL")
	setStr(&cfg.Database.Host, "COMPACTD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "COMPACTD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "COMPACTD_DATABASE_NAME")
	setStr(&cfg.Database.User, "COMPACTD_DATABASE_USER")
	setStr(&cfg.Database.Password, "COMPACTD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "COMPACTD_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "COMPACTD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "COMPACTD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "COMPACTD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "COMPACTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COMPACTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COMPACTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COMPACTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COMPACTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COMPACTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "COMPACTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "COMPACTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "COMPACTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "COMPACTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "COMPACTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "COMPACTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "COMPACTD_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionHours, "COMPACTD_S3_RETENTION_HOURS")
	setInt(&cfg.S3.ArchiveIntervalMinutes, "COMPACTD_S3_ARCHIVE_INTERVAL_MINUTES")

	// ── Server ──
	setInt(&cfg.Server.Port, "COMPACTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COMPACTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "COMPACTD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COMPACTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COMPACTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COMPACTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "COMPACTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "COMPACTD_LOG_LEVEL")
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
