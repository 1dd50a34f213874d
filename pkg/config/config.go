package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. ACCREDIT_DATABASE_DRIVER overrides database.driver.
	EnvPrefix = "ACCREDIT"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultSessionTTL is the fixed lifetime of an admin session.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultCookieName is the cookie that carries the admin session token.
	DefaultCookieName = "admin_session"

	// DefaultSessionCleanupInterval is how often expired sessions are purged.
	DefaultSessionCleanupInterval = 15 * time.Minute

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "accredit.db"

	// DefaultAdminRole is assigned to seeded admins without an explicit role.
	DefaultAdminRole = "admin"

	// DefaultServiceName identifies the service in traces.
	DefaultServiceName = "accredit"

	// MinPasswordLength is the minimum accepted admin password length.
	MinPasswordLength = 6
)

// Config is the root configuration for the accreditation service.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Standards []StandardSeed  `yaml:"standards,omitempty" mapstructure:"standards"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// Load reads one or more configuration files, merging them in order, and
// applies environment variable overrides on top.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every scalar key with viper. Keys unknown to viper
// are not picked up from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.auth.requests_per_minute", 10)
	v.SetDefault("server.rate_limit.public.requests_per_minute", 60)
	v.SetDefault("server.rate_limit.authenticated.requests_per_minute", 300)

	v.SetDefault("auth.session_ttl", DefaultSessionTTL)
	v.SetDefault("auth.cookie_name", DefaultCookieName)
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.session_cleanup_interval", DefaultSessionCleanupInterval)
	v.SetDefault("auth.argon2.memory_kib", 64*1024)
	v.SetDefault("auth.argon2.iterations", 3)
	v.SetDefault("auth.argon2.parallelism", 2)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", DefaultServiceName)
}

// applyDefaults fills values that viper defaults cannot express, such as
// fields inside list entries.
func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = DefaultSessionTTL
	}

	if c.Auth.CookieName == "" {
		c.Auth.CookieName = DefaultCookieName
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}

	for i := range c.Auth.Admins {
		if c.Auth.Admins[i].Role == "" {
			c.Auth.Admins[i].Role = DefaultAdminRole
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if c.Server.RateLimit.Enabled {
		tiers := map[string]RateLimitTier{
			"auth":          c.Server.RateLimit.Auth,
			"public":        c.Server.RateLimit.Public,
			"authenticated": c.Server.RateLimit.Authenticated,
		}

		for name, tier := range tiers {
			if tier.RequestsPerMinute <= 0 {
				return fmt.Errorf(
					"server.rate_limit.%s.requests_per_minute must be positive", name,
				)
			}
		}
	}

	if c.Server.StaticDir != "" {
		info, err := os.Stat(c.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("server.static_dir: %w", err)
		}

		if !info.IsDir() {
			return fmt.Errorf("server.static_dir %q is not a directory", c.Server.StaticDir)
		}
	}

	if err := c.Auth.validate(); err != nil {
		return err
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	for i, s := range c.Standards {
		if s.StandardName == "" || s.Category == "" {
			return fmt.Errorf("standards[%d]: standard_name and category are required", i)
		}
	}

	return nil
}

// Redacted returns a copy of the config with secrets masked, suitable for
// printing.
func (c *Config) Redacted() *Config {
	out := *c

	out.Auth.Admins = make([]AdminSeed, len(c.Auth.Admins))
	for i, a := range c.Auth.Admins {
		a.Password = redacted
		out.Auth.Admins[i] = a
	}

	if out.Database.Postgres.Password != "" {
		out.Database.Postgres.Password = redacted
	}

	return &out
}

const redacted = "REDACTED"
