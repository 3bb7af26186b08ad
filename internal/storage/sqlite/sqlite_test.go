package sqlitestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huiputin/routemap/internal/database"
	"github.com/huiputin/routemap/internal/model"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestInitClose_NoDump(t *testing.T) {
	b, err := New(Config{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, b.Init())
	_, err = b.CreateRoute(context.Background(), core.Position{X: 1, Y: 1}, core.RouteDraft{Name: "Arete"})
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestDumpLoop_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routemap.db")
	b, err := New(Config{DumpInterval: 20 * time.Millisecond, DumpPath: path}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	_, err = b.CreateRoute(context.Background(), core.Position{X: 1, Y: 1}, core.RouteDraft{Name: "Arete"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
}

func TestClose_WritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final.db")
	b, err := New(Config{DumpInterval: time.Hour, DumpPath: path}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	m, err := b.CreateRoute(context.Background(), core.Position{X: 7, Y: 8}, core.RouteDraft{Name: "Roof"})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	disk, err := database.GetSqliteDB(path)
	require.NoError(t, err)
	var row model.Marker
	require.NoError(t, disk.First(&row, "id = ?", m.ID).Error)
	assert.Equal(t, 7.0, row.X)
}
