package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenForTesting(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='sessions'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "sessions", tableName)
}

func TestOpenForTestingIsPrivate(t *testing.T) {
	a, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, err = a.Exec("INSERT INTO sessions (id) VALUES ('only-in-a')")
	require.NoError(t, err)

	var n int
	require.NoError(t, b.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n))
	assert.Zero(t, n)
}

func TestOpenFileReappliesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pillpal.db")

	first, err := Open(path)
	require.NoError(t, err)
	_, err = first.Exec("INSERT INTO sessions (id) VALUES ('kept')")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	var n int
	require.NoError(t, second.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = 'kept'").Scan(&n))
	assert.Equal(t, 1, n)
}
