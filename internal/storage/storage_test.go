package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGeoStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewGeoStore(db)

	require.NoError(t, store.SaveEntry("203.0.113.5", "FR"))
	require.NoError(t, store.SaveEntry("198.51.100.7", "DE"))
	// upsert replaces
	require.NoError(t, store.SaveEntry("203.0.113.5", "BE"))

	entries, err := store.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"203.0.113.5":  "BE",
		"198.51.100.7": "DE",
	}, entries)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCursorStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewCursorStore(db)

	_, _, ok, err := store.Load("/var/log/fail2ban.log")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save("/var/log/fail2ban.log", 1024, 42))
	require.NoError(t, store.Save("/var/log/fail2ban.log", 2048, 42))

	offset, inode, ok, err := store.Load("/var/log/fail2ban.log")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2048), offset)
	assert.Equal(t, uint64(42), inode)
}
