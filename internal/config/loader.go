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
// built-in defaults, applies BARTERD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BARTERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "BARTERD_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "BARTERD_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "BARTERD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BARTERD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BARTERD_DATABASE_NAME")
	setStr(&cfg.Database.User, "BARTERD_DATABASE_USER")
	setStr(&cfg.Database.Password, "BARTERD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BARTERD_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "BARTERD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BARTERD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BARTERD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BARTERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BARTERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BARTERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BARTERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BARTERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BARTERD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BARTERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BARTERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "BARTERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BARTERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BARTERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BARTERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BARTERD_S3_FORCE_PATH_STYLE")

	// ── Txn ──
	setInt(&cfg.Txn.MaxRetries, "BARTERD_TXN_MAX_RETRIES")
	setDuration(&cfg.Txn.RetryDelay, "BARTERD_TXN_RETRY_DELAY")

	// ── Trust ──
	setDuration(&cfg.Trust.CacheTTL, "BARTERD_TRUST_CACHE_TTL")

	// ── Escrow ──
	setStr(&cfg.Escrow.BaseAmount, "BARTERD_ESCROW_BASE_AMOUNT")
	setDuration(&cfg.Escrow.HoldDuration, "BARTERD_ESCROW_HOLD_DURATION")

	// ── Server ──
	setInt(&cfg.Server.Port, "BARTERD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BARTERD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BARTERD_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "BARTERD_MODE")
	setStr(&cfg.LogLevel, "BARTERD_LOG_LEVEL")
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
