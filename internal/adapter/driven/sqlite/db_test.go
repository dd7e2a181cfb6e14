package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRates(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Reader.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM exchange_rates`).Scan(&n))
	return n
}

func TestWriteTx_Commits(t *testing.T) {
	db := setupTestDB(t)

	err := db.WriteTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO exchange_rates (date, rates_json, created_at, updated_at) VALUES ('2025-09-20', '{}', 'x', 'x')`)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countRates(t, db))
}

func TestWriteTx_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	boom := errors.New("boom")

	err := db.WriteTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO exchange_rates (date, rates_json, created_at, updated_at) VALUES ('2025-09-20', '{}', 'x', 'x')`); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countRates(t, db))
}

func TestPing(t *testing.T) {
	ctx := context.Background()

	t.Run("migrated", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, db.Ping(ctx))

		version, err := schemaVersion(ctx, db.Reader)
		require.NoError(t, err)
		assert.Positive(t, version)
	})

	t.Run("dirty schema", func(t *testing.T) {
		db := setupTestDB(t)
		_, err := db.Writer.Exec(`UPDATE schema_migrations SET dirty = 1`)
		require.NoError(t, err)

		assert.ErrorContains(t, db.Ping(ctx), "dirty")
	})

	t.Run("not migrated", func(t *testing.T) {
		db := setupTestDB(t)
		_, err := db.Writer.Exec(`DELETE FROM schema_migrations`)
		require.NoError(t, err)

		assert.ErrorContains(t, db.Ping(ctx), "not been migrated")
	})

	t.Run("closed", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, db.Close())

		assert.Error(t, db.Ping(ctx))
	})
}
