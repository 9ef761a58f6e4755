package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/legit-games/eveauth/models"
)

// EnvPrefix prefixes every environment override; "__" separates nesting levels,
// e.g. EVEAUTH_DATABASE__DSN sets database.dsn.
const EnvPrefix = "EVEAUTH_"

// Config is the validated process configuration.
type Config struct {
	Env   string `koanf:"env"`
	Debug bool   `koanf:"debug"`

	HTTP      HTTPConfig      `koanf:"http"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Kiu       KiuConfig       `koanf:"kiu"`
	Identity  IdentityConfig  `koanf:"identity"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Signing   SigningConfig   `koanf:"signing"`
	Refresher RefresherConfig `koanf:"refresher"`
	Cache     CacheConfig     `koanf:"cache"`
	Valkey    ValkeyConfig    `koanf:"valkey"`
	Mail      MailConfig      `koanf:"mail"`
	Blacklist BlacklistConfig `koanf:"blacklist"`

	RecommendedKeyMask        int64  `koanf:"recommended_key_mask" validate:"min=0"`
	RecommendedKeyKind        string `koanf:"recommended_key_kind" validate:"omitempty,oneof=Account Character Corporation"`
	RequireRecommendedKey     bool   `koanf:"require_recommended_key"`
	RecommendVerifiedKeysOnly bool   `koanf:"recommend_verified_keys_only"`
	LoginHistoryDays          int    `koanf:"login_history_days" validate:"min=1"`

	// DefaultPermissions are held by every authenticated user.
	DefaultPermissions []string `koanf:"default_permissions"`
}

type HTTPConfig struct {
	Addr           string        `koanf:"addr" validate:"required"`
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"min=0"`
}

type DatabaseConfig struct {
	Driver         string `koanf:"driver" validate:"oneof=postgres sqlite"`
	DSN            string `koanf:"dsn" validate:"required"`
	MigrateOnStart bool   `koanf:"migrate_on_start"`
	SeedOnStart    bool   `koanf:"seed_on_start"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// KiuConfig holds the shared secret of the identity provider assertions.
type KiuConfig struct {
	Secret string `koanf:"secret" validate:"required,min=16"`
}

type IdentityConfig struct {
	Cookie       string        `koanf:"cookie" validate:"required"`
	FailureDelay time.Duration `koanf:"failure_delay" validate:"min=0"`
}

type UpstreamConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
	Breaker BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"min=1"`
}

type SigningConfig struct {
	Skew time.Duration `koanf:"skew" validate:"min=0"`
}

type RefresherConfig struct {
	Enabled bool `koanf:"enabled"`
	// Interval is the full refresh cycle in minutes and the number of buckets.
	Interval int `koanf:"interval" validate:"min=1"`
	// Workers is the number of concurrent bucket workers.
	Workers int     `koanf:"workers" validate:"min=1,ltefield=Interval"`
	QPS     float64 `koanf:"qps" validate:"gt=0"`
}

type CacheConfig struct {
	// Path of the buntdb file; ":memory:" keeps the cache in process.
	Path string `koanf:"path" validate:"required"`
}

type ValkeyConfig struct {
	Addr   string `koanf:"addr"`
	Prefix string `koanf:"prefix"`
}

type MailConfig struct {
	Provider string     `koanf:"provider" validate:"oneof=console smtp"`
	From     string     `koanf:"from" validate:"omitempty,email"`
	SMTP     SMTPConfig `koanf:"smtp"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	UseTLS   bool   `koanf:"use_tls"`
}

// BlacklistConfig rejects authorize callbacks by scheme or host.
type BlacklistConfig struct {
	Schemes []string `koanf:"schemes"`
	Hosts   []string `koanf:"hosts"`
}

// Default returns the compiled defaults.
func Default() Config {
	return Config{
		Env: "local",
		HTTP: HTTPConfig{
			Addr:           ":8080",
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "eveauth.db"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Identity: IdentityConfig{Cookie: "eveauth_identity", FailureDelay: time.Second},
		Upstream: UpstreamConfig{
			BaseURL: "https://api.eveonline.com",
			Timeout: 10 * time.Second,
			Breaker: BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: 30 * time.Second, FailureThreshold: 5},
		},
		Signing:          SigningConfig{Skew: 15 * time.Second},
		Refresher:        RefresherConfig{Enabled: true, Interval: 60, Workers: 4, QPS: 10},
		Cache:            CacheConfig{Path: ":memory:"},
		Valkey:           ValkeyConfig{Prefix: "eveauth:"},
		Mail:             MailConfig{Provider: "console"},
		Blacklist:        BlacklistConfig{Schemes: []string{"javascript", "data", "file"}},
		LoginHistoryDays: 30,
		DefaultPermissions: []string{
			"core.application.authorize.*",
		},
	}
}

// Load layers defaults, config/config.yaml, config/config.<APP_ENV>.yaml and
// EVEAUTH_ environment variables, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "config"
	}
	envName := os.Getenv("APP_ENV")
	if envName == "" {
		envName = "local"
	}
	for _, name := range []string{"config.yaml", "config." + envName + ".yaml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if c.Env == "" {
		c.Env = envName
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// envKey maps EVEAUTH_REFRESHER__QPS to refresher.qps.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Mail.Provider == "smtp" && c.Mail.SMTP.Host == "" {
		return fmt.Errorf("config: mail.smtp.host is required for the smtp provider")
	}
	return nil
}

// KeyPolicy is the recommended credential shape.
func (c *Config) KeyPolicy() models.KeyPolicy {
	kind, _ := models.ParseKeyKind(c.RecommendedKeyKind)
	return models.KeyPolicy{RecommendedMask: c.RecommendedKeyMask, RecommendedKind: kind}
}

// LoginHistoryTTL is how long login history rows are kept.
func (c *Config) LoginHistoryTTL() time.Duration {
	return time.Duration(c.LoginHistoryDays) * 24 * time.Hour
}
