package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigratorRunsPendingMigrations(t *testing.T) {
	db := openTestDB(t, "migrator_runs")
	m := NewMigrator(db)
	m.AddMigration(Migration{
		Version: 1,
		Name:    "create_things",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE things (id INTEGER PRIMARY KEY)")
			return err
		},
	})

	require.NoError(t, m.RunMigrations())

	version, err := m.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, err = db.Exec("INSERT INTO things (id) VALUES (1)")
	assert.NoError(t, err)
}

func TestMigratorSortsByVersion(t *testing.T) {
	db := openTestDB(t, "migrator_sorts")
	m := NewMigrator(db)

	var order []int64
	mk := func(version int64) Migration {
		return Migration{
			Version: version,
			Name:    fmt.Sprintf("m%d", version),
			Up: func(*sql.Tx) error {
				order = append(order, version)
				return nil
			},
		}
	}
	m.AddMigration(mk(3))
	m.AddMigration(mk(1))
	m.AddMigration(mk(2))

	require.NoError(t, m.RunMigrations())
	assert.Equal(t, []int64{1, 2, 3}, order)
}

func TestMigratorSkipsAppliedMigrations(t *testing.T) {
	db := openTestDB(t, "migrator_skips")
	m := NewMigrator(db)

	runs := 0
	m.AddMigration(Migration{
		Version: 1,
		Name:    "once",
		Up: func(*sql.Tx) error {
			runs++
			return nil
		},
	})

	require.NoError(t, m.RunMigrations())
	require.NoError(t, m.RunMigrations())
	assert.Equal(t, 1, runs)
}

func TestMigratorStopsOnFailure(t *testing.T) {
	db := openTestDB(t, "migrator_fails")
	m := NewMigrator(db)

	m.AddMigration(Migration{
		Version: 1,
		Name:    "ok",
		Up:      func(*sql.Tx) error { return nil },
	})
	m.AddMigration(Migration{
		Version: 2,
		Name:    "boom",
		Up:      func(*sql.Tx) error { return errors.New("boom") },
	})
	m.AddMigration(Migration{
		Version: 3,
		Name:    "never",
		Up: func(*sql.Tx) error {
			t.Fatal("migration after a failure must not run")
			return nil
		},
	})

	err := m.RunMigrations()
	require.Error(t, err)

	version, verr := m.GetCurrentVersion()
	require.NoError(t, verr)
	assert.Equal(t, int64(1), version)
}

func TestMigratorFailedStepLeavesNoTrace(t *testing.T) {
	db := openTestDB(t, "migrator_rollback")
	m := NewMigrator(db)

	m.AddMigration(Migration{
		Version: 1,
		Name:    "partial",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec("CREATE TABLE partial (id INTEGER PRIMARY KEY)"); err != nil {
				return err
			}
			return errors.New("abort after DDL")
		},
	})

	require.Error(t, m.RunMigrations())

	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'partial'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInitialMigrationsCreateSchema(t *testing.T) {
	db := openTestDB(t, "migrator_initial")
	m := NewMigrator(db)
	for _, migration := range GetInitialMigrations() {
		m.AddMigration(migration)
	}
	for _, migration := range GetPerformanceMigrations() {
		m.AddMigration(migration)
	}

	require.NoError(t, m.RunMigrations())

	for _, table := range []string{"machines", "block_devices", "partitions", "filesystems",
		"package_repositories", "config", "node_keys", "users"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s missing", table)
	}
}
