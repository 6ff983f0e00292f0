package snapshot_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"codeberg.org/mutker/nvidiautil/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) snapshot.Config {
	t.Helper()

	return snapshot.Config{
		DBPath:    filepath.Join(t.TempDir(), "data", "snapshot.db"),
		BatchSize: 16,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := snapshot.Open(snapshot.Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, snapshot.ErrInvalidDBPath))
}

func TestLatestKeepsNewestValue(t *testing.T) {
	store, err := snapshot.Open(testConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	obs := store.Observer("temperature")
	obs.OnValue(0, metric.Number(60, metric.UnitCelsius))
	obs.OnValue(0, metric.Number(64, metric.UnitCelsius))
	obs.OnValue(1, metric.Number(48, metric.UnitCelsius))
	store.Observer("name").OnValue(0, metric.Text("GeForce RTX 3080"))

	entries, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "name", entries[0].Metric)
	assert.Equal(t, metric.Text("GeForce RTX 3080"), entries[0].Value())

	assert.Equal(t, "temperature", entries[1].Metric)
	assert.Equal(t, 0, entries[1].Device)
	assert.Equal(t, metric.Number(64, metric.UnitCelsius), entries[1].Value())
	assert.Equal(t, "64°C", entries[1].Display)

	assert.Equal(t, 1, entries[2].Device)
	assert.InDelta(t, 48.0, entries[2].Number, 0.001)
}

func TestUpsertAcrossFlushes(t *testing.T) {
	store, err := snapshot.Open(testConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record("fan", 0, metric.Number(30, metric.UnitPercent)))
	require.NoError(t, store.Flush())
	require.NoError(t, store.Record("fan", 0, metric.Number(55, metric.UnitPercent)))

	entries, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 55.0, entries[0].Number, 0.001)
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 2

	store, err := snapshot.Open(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record("power", 0, metric.Number(120, metric.UnitWatt)))
	require.NoError(t, store.Record("power", 1, metric.Number(90, metric.UnitWatt)))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM latest").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestCloseFlushesAndPersists(t *testing.T) {
	cfg := testConfig(t)

	store, err := snapshot.Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.Record("memory", 0, metric.Number(1024, metric.UnitMiB)))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err = store.Record("memory", 0, metric.Number(2048, metric.UnitMiB))
	assert.True(t, errors.HasCode(err, snapshot.ErrStoreClosed))

	reopened, err := snapshot.Open(cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1024 MiB", entries[0].Display)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	store, err := snapshot.Open(testConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()

	assert.True(t, errors.HasCode(store.Record("", 0, metric.Text("x")), snapshot.ErrInvalidMetric))
	assert.True(t, errors.HasCode(store.Record("fan", -1, metric.Text("x")), metric.ErrInvalidDeviceNum))
}

func TestStaleSchemaIsBackedUp(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackupDir = filepath.Join(t.TempDir(), "backups")
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := snapshot.Open(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	backups, err := filepath.Glob(filepath.Join(cfg.BackupDir, "snapshot_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	entries, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
