package auth

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguedu/accredit/pkg/api/store"
	"github.com/moguedu/accredit/pkg/config"
	"github.com/moguedu/accredit/pkg/credential"
)

func TestLogin_UnknownUserRunsKDF(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	hasher := credential.NewHasher(credential.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	svc := NewService(log, st, hasher, Options{}).(*service)

	// The dummy digest must be a real digest for the current parameters,
	// otherwise Verify would return early without deriving a key.
	require.NotEmpty(t, svc.dummy)
	assert.False(t, hasher.NeedsRehash(svc.dummy))
	assert.False(t, hasher.Verify("anything", svc.dummy))

	ctx := context.Background()

	_, err := svc.Login(ctx, "ghost", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.CreateAdmin(ctx, config.AdminSeed{Username: "dormant", Password: "secret99"})
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(ctx, "dormant", false))

	_, err = svc.Login(ctx, "dormant", "secret99")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	other := NewService(log, st, hasher, Options{}).(*service)
	assert.NotEqual(t, svc.dummy, other.dummy, "dummy digests are salted per service")
}
