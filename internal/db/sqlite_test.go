package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaVersion(t *testing.T, d *Database) int {
	t.Helper()
	var v int
	require.NoError(t, d.QueryRow(context.Background(), "PRAGMA user_version").Scan(&v))
	return v
}

func TestMigrateRunsEachStepOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	ctx := context.Background()
	steps := []string{
		`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`,
		`INSERT INTO kv (k, v) VALUES ('seed', '1')`,
	}

	d, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, d.Migrate(ctx, steps))
	assert.Equal(t, 2, schemaVersion(t, d))
	require.NoError(t, d.Close())

	// reopening must not replay the insert
	d, err = Open(path)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Migrate(ctx, steps))

	var n int
	require.NoError(t, d.QueryRow(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	_, err = d.Exec(ctx, "PRAGMA user_version = 5")
	require.NoError(t, err)

	assert.Error(t, d.Migrate(ctx, []string{`SELECT 1`}))
}

func TestMigrateRollsBackFailedStep(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	err = d.Migrate(ctx, []string{`CREATE TABLE ok (id INTEGER)`, `NOT SQL`})
	require.Error(t, err)
	assert.Equal(t, 1, schemaVersion(t, d))
}
