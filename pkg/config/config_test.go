package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  listen: ":9000"
auth:
  session_ttl: 12h
  cookie_name: original_cookie
database:
  driver: sqlite
  sqlite:
    path: /tmp/original.db
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":9000", cfg.Server.Listen)
				assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
				assert.Equal(t, "original_cookie", cfg.Auth.CookieName)
				assert.Equal(t, "/tmp/original.db", cfg.Database.SQLite.Path)
			},
		},
		{
			name: "string override - server.listen",
			envVars: map[string]string{
				"ACCREDIT_SERVER_LISTEN": ":7000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":7000", cfg.Server.Listen)
			},
		},
		{
			name: "duration override - auth.session_ttl",
			envVars: map[string]string{
				"ACCREDIT_AUTH_SESSION_TTL": "30m",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30*time.Minute, cfg.Auth.SessionTTL)
			},
		},
		{
			name: "boolean override - auth.cookie_secure",
			envVars: map[string]string{
				"ACCREDIT_AUTH_COOKIE_SECURE": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Auth.CookieSecure)
			},
		},
		{
			name: "nested override - database.postgres.port",
			envVars: map[string]string{
				"ACCREDIT_DATABASE_POSTGRES_PORT": "6543",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 6543, cfg.Database.Postgres.Port)
			},
		},
		{
			name: "slice override - server.cors_origins",
			envVars: map[string]string{
				"ACCREDIT_SERVER_CORS_ORIGINS": "https://a.example,https://b.example",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t,
					[]string{"https://a.example", "https://b.example"},
					cfg.Server.CORSOrigins,
				)
			},
		},
		{
			name: "multiple overrides",
			envVars: map[string]string{
				"ACCREDIT_DATABASE_DRIVER":          "postgres",
				"ACCREDIT_DATABASE_POSTGRES_HOST":   "db.internal",
				"ACCREDIT_SERVER_RATE_LIMIT_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres", cfg.Database.Driver)
				assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
				assert.True(t, cfg.Server.RateLimit.Enabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
auth:
  admins:
    - username: admin
      password: changeme
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultSessionTTL, cfg.Auth.SessionTTL)
	assert.Equal(t, DefaultCookieName, cfg.Auth.CookieName)
	assert.Equal(t, DefaultSessionCleanupInterval, cfg.Auth.SessionCleanupInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, uint32(64*1024), cfg.Auth.Argon2.MemoryKiB)
	assert.True(t, cfg.Telemetry.MetricsEnabled)

	require.Len(t, cfg.Auth.Admins, 1)
	assert.Equal(t, DefaultAdminRole, cfg.Auth.Admins[0].Role)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
server:
  listen: ":8000"
database:
  sqlite:
    path: base.db
`)
	override := writeConfig(t, "override.yaml", `
database:
  sqlite:
    path: override.db
standards:
  - standard_name: Curriculum Design
    category: Teaching
    description: Structured learning outcomes.
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, "override.db", cfg.Database.SQLite.Path)
	require.Len(t, cfg.Standards, 1)
	assert.Equal(t, "Teaching", cfg.Standards[0].Category)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "invalid: yaml: content:")

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "unsupported driver",
			mutate:  func(cfg *Config) { cfg.Database.Driver = "mysql" },
			wantErr: "unsupported database driver",
		},
		{
			name: "postgres without database",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "postgres"
				cfg.Database.Postgres.Database = ""
			},
			wantErr: "database.postgres host and database are required",
		},
		{
			name:    "non-positive session ttl",
			mutate:  func(cfg *Config) { cfg.Auth.SessionTTL = -time.Second },
			wantErr: "auth.session_ttl must be positive",
		},
		{
			name: "short seeded admin password",
			mutate: func(cfg *Config) {
				cfg.Auth.Admins = []AdminSeed{{Username: "admin", Password: "123"}}
			},
			wantErr: "password must be at least 6 characters",
		},
		{
			name: "duplicate seeded admin",
			mutate: func(cfg *Config) {
				cfg.Auth.Admins = []AdminSeed{
					{Username: "admin", Password: "secret1"},
					{Username: "admin", Password: "secret2"},
				}
			},
			wantErr: "duplicate username",
		},
		{
			name: "rate limit tier without limit",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit.Enabled = true
				cfg.Server.RateLimit.Public.RequestsPerMinute = 0
			},
			wantErr: "server.rate_limit.public.requests_per_minute must be positive",
		},
		{
			name: "standard without category",
			mutate: func(cfg *Config) {
				cfg.Standards = []StandardSeed{{StandardName: "Assessment"}}
			},
			wantErr: "standard_name and category are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := &Config{
		Auth: AuthConfig{
			Admins: []AdminSeed{{Username: "admin", Password: "supersecret"}},
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{Password: "dbsecret"},
		},
	}

	out := cfg.Redacted()

	assert.Equal(t, redacted, out.Auth.Admins[0].Password)
	assert.Equal(t, redacted, out.Database.Postgres.Password)
	assert.Equal(t, "supersecret", cfg.Auth.Admins[0].Password, "original must be untouched")
	assert.Equal(t, "dbsecret", cfg.Database.Postgres.Password)
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 10, cfg.Server.RateLimit.Auth.RequestsPerMinute)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, uint32(65536), cfg.Auth.Argon2.MemoryKiB)
	require.Len(t, cfg.Auth.Admins, 1)
	assert.Equal(t, "admin", cfg.Auth.Admins[0].Username)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Len(t, cfg.Standards, 3)
}
