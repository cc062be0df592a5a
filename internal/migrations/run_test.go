package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/premium-entitlements/internal/storage/pgtest"
)

func TestRunMigrations(t *testing.T) {
	db, _, cleanup := pgtest.Start(t)
	defer cleanup()

	migrationsPath := pgtest.MigrationsPath(t)

	err := Run(db, migrationsPath)
	require.NoError(t, err)

	for _, table := range []string{"users", "subscriptions"} {
		var exists bool
		err = db.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables 
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		require.True(t, exists, "table %s should exist after migration", table)
	}

	var indexExists bool
	err = db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes WHERE indexname = 'ux_subscriptions_one_active'
		)`).Scan(&indexExists)
	require.NoError(t, err)
	require.True(t, indexExists)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, _, cleanup := pgtest.Start(t)
	defer cleanup()

	migrationsPath := pgtest.MigrationsPath(t)

	require.NoError(t, Run(db, migrationsPath))
	require.NoError(t, Run(db, migrationsPath), "second run must be a no-op")
}
