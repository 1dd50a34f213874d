package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguedu/accredit/pkg/api/store"
	"github.com/moguedu/accredit/pkg/auth"
	"github.com/moguedu/accredit/pkg/config"
	"github.com/moguedu/accredit/pkg/credential"
)

const testConfig = `
auth:
  argon2:
    memory_kib: 1024
    iterations: 1
    parallelism: 1
  admins:
    - username: root
      password: seeded-secret
database:
  driver: sqlite
  sqlite:
    path: %s
`

// run executes the root command with args and returns what it printed.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()

	cfgFiles = nil

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--log-level", "error", "--config", cfgPath}, args...))

	err := rootCmd.Execute()

	return out.String(), err
}

// openStore opens the command's database directly for assertions.
func openStore(t *testing.T, dbPath string) store.Store {
	t.Helper()

	quiet := logrus.New()
	quiet.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(quiet, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: dbPath},
	})
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	return st
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "accredit.db")
	cfgPath := filepath.Join(dir, "config.yaml")

	content := bytes.ReplaceAll([]byte(testConfig), []byte("%s"), []byte(dbPath))
	require.NoError(t, os.WriteFile(cfgPath, content, 0o644))

	ctx := context.Background()

	t.Run("admin create", func(t *testing.T) {
		out, err := run(t, cfgPath, "admin", "create",
			"--username", "ops", "--password", "secret99", "--full-name", "Ops Desk")
		require.NoError(t, err)
		assert.Contains(t, out, `created admin "ops"`)

		admin, err := openStore(t, dbPath).GetAdminByUsername(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, "Ops Desk", admin.FullName)
		assert.Equal(t, config.DefaultAdminRole, admin.Role)
		assert.True(t, admin.IsActive)

		_, err = run(t, cfgPath, "admin", "create", "--username", "ops", "--password", "secret99")
		require.ErrorIs(t, err, auth.ErrAdminExists)
	})

	t.Run("admin passwd", func(t *testing.T) {
		out, err := run(t, cfgPath, "admin", "passwd", "--username", "ops", "--password", "rotated77")
		require.NoError(t, err)
		assert.Contains(t, out, `password updated for "ops"`)

		st := openStore(t, dbPath)
		hasher := credential.NewHasher(credential.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
		svc := auth.NewService(logrus.New(), st, hasher, auth.Options{})

		_, err = svc.Login(ctx, "ops", "rotated77")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "ops", "secret99")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)

		_, err = run(t, cfgPath, "admin", "passwd", "--username", "nobody", "--password", "rotated77")
		require.ErrorIs(t, err, auth.ErrAdminNotFound)
	})

	t.Run("admin disable and enable", func(t *testing.T) {
		out, err := run(t, cfgPath, "admin", "disable", "--username", "ops")
		require.NoError(t, err)
		assert.Contains(t, out, `admin "ops" disabled`)

		admin, err := openStore(t, dbPath).GetAdminByUsername(ctx, "ops")
		require.NoError(t, err)
		assert.False(t, admin.IsActive)

		out, err = run(t, cfgPath, "admin", "enable", "--username", "ops")
		require.NoError(t, err)
		assert.Contains(t, out, `admin "ops" enabled`)

		admin, err = openStore(t, dbPath).GetAdminByUsername(ctx, "ops")
		require.NoError(t, err)
		assert.True(t, admin.IsActive)
	})

	t.Run("sessions purge", func(t *testing.T) {
		st := openStore(t, dbPath)

		admin, err := st.GetAdminByUsername(ctx, "ops")
		require.NoError(t, err)

		require.NoError(t, st.CreateSession(ctx, &store.AdminSession{
			AdminID:      admin.ID,
			SessionToken: "stale-token",
			ExpiresAt:    time.Now().Add(-time.Hour),
		}))
		require.NoError(t, st.CreateSession(ctx, &store.AdminSession{
			AdminID:      admin.ID,
			SessionToken: "live-token",
			ExpiresAt:    time.Now().Add(time.Hour),
		}))

		out, err := run(t, cfgPath, "sessions", "purge")
		require.NoError(t, err)
		assert.Contains(t, out, "removed 1 expired session(s)")

		_, err = st.GetActiveSession(ctx, "live-token", time.Now())
		require.NoError(t, err)
	})

	t.Run("config print redacts secrets", func(t *testing.T) {
		out, err := run(t, cfgPath, "config", "print")
		require.NoError(t, err)
		assert.Contains(t, out, "username: root")
		assert.Contains(t, out, "password: REDACTED")
		assert.NotContains(t, out, "seeded-secret")
		assert.Contains(t, out, dbPath)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("database:\n  driver: oracle\n"), 0o644))

		_, err := run(t, bad, "sessions", "purge")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating config")
	})

	t.Run("version", func(t *testing.T) {
		out, err := run(t, cfgPath, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "accredit dev")
	})
}
