package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures environment driven configuration values for the availability engine.
type Config struct {
	HTTPPort  int    `envconfig:"HTTP_PORT" default:"8080"`
	SQLiteDSN string `envconfig:"SQLITE_DSN" default:"file:availability.db?_pragma=foreign_keys(1)"`

	// RedisAddr is optional; when empty the refresh lock falls back to the
	// in-process provider and cross-instance single-flight is not guaranteed.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// CredentialKey is the 256-bit AEAD key, hex encoded. Alternatively a
	// passphrase plus salt may be supplied and the key is derived from them.
	CredentialKey        string `envconfig:"CREDENTIAL_KEY"`
	CredentialPassphrase string `envconfig:"CREDENTIAL_PASSPHRASE"`
	CredentialSalt       string `envconfig:"CREDENTIAL_SALT"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleCalendarID   string `envconfig:"GOOGLE_CALENDAR_ID" default:"primary"`

	BusyCacheTTL     time.Duration `envconfig:"BUSY_CACHE_TTL" default:"90s"`
	BusyCacheEntries int           `envconfig:"BUSY_CACHE_ENTRIES" default:"4096"`
	PrewarmDays      int           `envconfig:"PREWARM_DAYS" default:"7"`

	RefreshLockTTL  time.Duration `envconfig:"REFRESH_LOCK_TTL" default:"10s"`
	RefreshLockWait time.Duration `envconfig:"REFRESH_LOCK_WAIT" default:"500ms"`

	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay  time.Duration `envconfig:"RETRY_MAX_DELAY" default:"10s"`
	RetryMax       int           `envconfig:"RETRY_MAX" default:"3"`
}

const envPrefix = "AVAILABILITY"

// Load parses configuration values from the current process environment.
//
// The loader applies defaults for optional fields while validating required
// values and reporting every missing or invalid entry in a single error.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if cfg.HTTPPort <= 0 {
		invalid = append(invalid, "AVAILABILITY_HTTP_PORT")
	}

	switch {
	case strings.TrimSpace(cfg.CredentialKey) != "":
		key, err := hex.DecodeString(strings.TrimSpace(cfg.CredentialKey))
		if err != nil || len(key) != 32 {
			invalid = append(invalid, "AVAILABILITY_CREDENTIAL_KEY")
		}
	case strings.TrimSpace(cfg.CredentialPassphrase) != "":
		if strings.TrimSpace(cfg.CredentialSalt) == "" {
			missing = append(missing, "AVAILABILITY_CREDENTIAL_SALT")
		}
	default:
		missing = append(missing, "AVAILABILITY_CREDENTIAL_KEY")
	}

	if cfg.BusyCacheTTL <= 0 {
		invalid = append(invalid, "AVAILABILITY_BUSY_CACHE_TTL")
	}
	if cfg.BusyCacheEntries <= 0 {
		invalid = append(invalid, "AVAILABILITY_BUSY_CACHE_ENTRIES")
	}
	if cfg.PrewarmDays < 0 {
		invalid = append(invalid, "AVAILABILITY_PREWARM_DAYS")
	}
	if cfg.RefreshLockTTL <= 0 {
		invalid = append(invalid, "AVAILABILITY_REFRESH_LOCK_TTL")
	}
	if cfg.RetryBaseDelay <= 0 || cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		invalid = append(invalid, "AVAILABILITY_RETRY_BASE_DELAY")
	}
	if cfg.RetryMax < 0 {
		invalid = append(invalid, "AVAILABILITY_RETRY_MAX")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
