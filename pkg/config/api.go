package config

import (
	"fmt"
	"time"
)

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	StaticDir   string          `yaml:"static_dir,omitempty" mapstructure:"static_dir"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Public        RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig contains admin authentication settings.
type AuthConfig struct {
	SessionTTL             time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	CookieName             string        `yaml:"cookie_name" mapstructure:"cookie_name"`
	CookieSecure           bool          `yaml:"cookie_secure" mapstructure:"cookie_secure"`
	SessionCleanupInterval time.Duration `yaml:"session_cleanup_interval" mapstructure:"session_cleanup_interval"`
	Argon2                 Argon2Config  `yaml:"argon2" mapstructure:"argon2"`
	Admins                 []AdminSeed   `yaml:"admins,omitempty" mapstructure:"admins"`
}

// Argon2Config tunes the argon2id password hashing cost.
type Argon2Config struct {
	MemoryKiB   uint32 `yaml:"memory_kib" mapstructure:"memory_kib"`
	Iterations  uint32 `yaml:"iterations" mapstructure:"iterations"`
	Parallelism uint8  `yaml:"parallelism" mapstructure:"parallelism"`
}

// AdminSeed defines an admin account created at startup when missing.
// Existing accounts are never overwritten.
type AdminSeed struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	FullName string `yaml:"full_name" mapstructure:"full_name"`
	Role     string `yaml:"role" mapstructure:"role"`
}

func (a *AuthConfig) validate() error {
	if a.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	if a.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}

	if a.SessionCleanupInterval < 0 {
		return fmt.Errorf("auth.session_cleanup_interval must not be negative")
	}

	if a.Argon2.MemoryKiB == 0 || a.Argon2.Iterations == 0 || a.Argon2.Parallelism == 0 {
		return fmt.Errorf("auth.argon2 memory_kib, iterations and parallelism must be positive")
	}

	seen := make(map[string]struct{}, len(a.Admins))

	for i, admin := range a.Admins {
		if admin.Username == "" {
			return fmt.Errorf("auth.admins[%d]: username is required", i)
		}

		if _, exists := seen[admin.Username]; exists {
			return fmt.Errorf("auth.admins[%d]: duplicate username %q", i, admin.Username)
		}

		seen[admin.Username] = struct{}{}

		if len(admin.Password) < MinPasswordLength {
			return fmt.Errorf(
				"auth.admins[%d]: password must be at least %d characters",
				i, MinPasswordLength,
			)
		}
	}

	return nil
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver          string               `yaml:"driver" mapstructure:"driver"`
	SQLite          SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres        PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
	MaxOpenConns    int                  `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int                  `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration        `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if d.Postgres.Host == "" || d.Postgres.Database == "" {
			return fmt.Errorf("database.postgres host and database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", d.Driver)
	}

	return nil
}

// StandardSeed is an accreditation standard loaded into the reference table.
type StandardSeed struct {
	StandardName string `yaml:"standard_name" mapstructure:"standard_name"`
	Category     string `yaml:"category" mapstructure:"category"`
	Description  string `yaml:"description" mapstructure:"description"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty" mapstructure:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
}
