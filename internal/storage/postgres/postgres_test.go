package postgres

import (
	"context"
	"testing"

	"github.com/huiputin/routemap/internal/database"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestNew(t *testing.T) {
	b := New(Dependencies{})
	require.NotNil(t, b)
	assert.NoError(t, b.Close(), "closing an uninitialised backend is a no-op")
}

func TestInitClose_InjectedDB(t *testing.T) {
	db, err := database.GetSqliteDB("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())

	m, err := b.CreateRoute(context.Background(), core.Position{X: 1, Y: 2}, core.RouteDraft{Name: "Dyno"})
	require.NoError(t, err)

	n, err := b.VoteForDelete(context.Background(), m.RouteID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, b.Close())

	// injected connection stays usable
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestInit_Unreachable(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "127.0.0.1")
	viper.Set("db.port", "1")
	viper.Set("db.username", "postgres")
	viper.Set("db.password", "postgres")
	viper.Set("db.database", "routemap")

	b := New(Dependencies{})
	err := b.Init()
	assert.ErrorContains(t, err, "postgres")
}
