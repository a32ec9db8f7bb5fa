package db_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/ato/internal/db"
)

func TestInitSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	conn, err := db.InitSQLite(path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)`, "k", "v", 1)
	require.NoError(t, err)

	var v string
	require.NoError(t, conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, "k").Scan(&v))
	assert.Equal(t, "v", v)
}

func TestInitSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := db.InitSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := db.InitSQLite(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestInitSQLite_MissingDir(t *testing.T) {
	_, err := db.InitSQLite(filepath.Join(t.TempDir(), "missing", "state.db"))
	require.Error(t, err)
}

func TestSweepSupersededDrafts_KeepsRestorableDrafts(t *testing.T) {
	conn, err := db.InitSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().Unix()
	rows := map[string]string{
		// Черновик свежее серверной версии: его можно восстановить.
		"ato:draft:1": `{"itemId":1,"title":"offline edit","memo":"","savedAt":"2024-03-01T12:00:00.5Z","serverUpdatedAt":"2024-03-01T11:00:00Z"}`,
		// Сохранён раньше своей серверной версии: восстановить нельзя.
		"ato:draft:2": `{"itemId":2,"title":"old","memo":"","savedAt":"2024-03-01T10:00:00Z","serverUpdatedAt":"2024-03-01T12:00:00+01:00"}`,
		"ato:draft:3": `{"itemId":3,"title":"same","memo":"","savedAt":"2024-03-01T11:00:00Z","serverUpdatedAt":"2024-03-01T11:00:00Z"}`,
		"ato:draft:4": `{broken`,
		"ato:token":   `tok`,
	}
	for k, v := range rows {
		_, err := conn.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)`, k, v, now)
		require.NoError(t, err)
	}

	n, err := db.SweepSupersededDrafts(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left []string
	res, err := conn.Query(`SELECT key FROM kv ORDER BY key`)
	require.NoError(t, err)
	defer res.Close()
	for res.Next() {
		var k string
		require.NoError(t, res.Scan(&k))
		left = append(left, k)
	}
	require.NoError(t, res.Err())
	assert.Equal(t, []string{"ato:draft:1", "ato:draft:3", "ato:draft:4", "ato:token"}, left)
}
