package tail

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(lines []Line) []string {
	var out []string
	for _, l := range lines {
		if !l.Rotated {
			out = append(out, l.Text)
		}
	}
	return out
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestPollIncremental(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	appendFile(t, path, "one\ntwo\n")

	tailer := Open(path)
	lines, err := tailer.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, texts(lines))

	appendFile(t, path, "three\n")
	lines, err = tailer.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"three"}, texts(lines))

	// nothing new
	lines, err = tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPollBuffersPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	appendFile(t, path, "complete\npart")

	tailer := Open(path)
	lines, err := tailer.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"complete"}, texts(lines))

	appendFile(t, path, "ial\n")
	lines, err = tailer.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, texts(lines))
}

func TestPollDetectsTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	appendFile(t, path, "old-1\nold-2\nold-3\n")

	tailer := Open(path)
	_, err := tailer.Poll()
	require.NoError(t, err)

	// Simulate copytruncate rotation: same inode, smaller size.
	require.NoError(t, os.Truncate(path, 0))
	appendFile(t, path, "new-1\n")

	lines, err := tailer.Poll()
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.True(t, lines[0].Rotated, "first line after rotation must be the marker")
	assert.Equal(t, []string{"new-1"}, texts(lines), "first new line must not be skipped")

	// The reset happens exactly once.
	appendFile(t, path, "new-2\n")
	lines, err = tailer.Poll()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.False(t, lines[0].Rotated)
	assert.Equal(t, "new-2", lines[0].Text)
}

func TestPollDetectsNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	appendFile(t, path, "old\n")

	tailer := Open(path)
	_, err := tailer.Poll()
	require.NoError(t, err)

	// Rename-and-recreate rotation: new inode.
	require.NoError(t, os.Rename(path, path+".1"))
	appendFile(t, path, "fresh\n")

	lines, err := tailer.Poll()
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.True(t, lines[0].Rotated)
	assert.Equal(t, []string{"fresh"}, texts(lines))
}

func TestPollSourceUnavailable(t *testing.T) {
	tailer := Open(filepath.Join(t.TempDir(), "missing.log"))
	_, err := tailer.Poll()
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestCursorRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	appendFile(t, path, "one\ntwo\n")

	first := Open(path)
	_, err := first.Poll()
	require.NoError(t, err)
	offset, inode := first.Cursor()
	require.NotZero(t, inode)

	appendFile(t, path, "three\n")

	second := Open(path)
	second.SetCursor(offset, inode)
	lines, err := second.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"three"}, texts(lines))
}

func TestCursorRestoreIgnoredAfterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail2ban.log")
	appendFile(t, path, "one\ntwo\n")

	first := Open(path)
	_, err := first.Poll()
	require.NoError(t, err)
	offset, inode := first.Cursor()

	require.NoError(t, os.Remove(path))
	appendFile(t, path, "a\n")

	second := Open(path)
	second.SetCursor(offset, inode)
	lines, err := second.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, texts(lines), "stale cursor must fall back to the file start")
}
