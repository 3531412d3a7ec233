package migrations_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"readiculous/internal/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, path, name string) bool {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	require.NoError(t, err)
	return count > 0
}

// TestSQLite_UpDown тестирует применение и откат миграций на sqlite
func TestSQLite_UpDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")

	require.NoError(t, migrations.Up(migrations.SQLite, path))
	assert.True(t, tableExists(t, path, "records"))

	version, dirty, err := migrations.Version(migrations.SQLite, path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// повторный запуск ничего не меняет
	require.NoError(t, migrations.Up(migrations.SQLite, path))

	require.NoError(t, migrations.Down(migrations.SQLite, path))
	assert.False(t, tableExists(t, path, "records"))

	version, _, err = migrations.Version(migrations.SQLite, path)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestUnknownDialect(t *testing.T) {
	err := migrations.Up(migrations.Dialect("mysql"), "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}
