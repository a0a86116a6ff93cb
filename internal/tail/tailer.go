// Package tail incrementally reads appended lines from a log file,
// detecting rotation and buffering partial trailing lines.
package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ErrSourceUnavailable is returned when the log file is missing or
// unreadable. The caller decides the retry cadence.
var ErrSourceUnavailable = errors.New("log source unavailable")

// maxPollBytes bounds how much one Poll call reads, so a huge backlog
// cannot stall a poll cycle. The remainder is picked up next cycle.
const maxPollBytes = 1 << 20

// Line is one raw line emitted by Poll.
type Line struct {
	Text   string
	Offset int64 // byte offset of the line start within the file
	// Rotated marks a synthetic entry emitted once after the file was
	// rotated or truncated; its Text is empty. Consumers should reset
	// any per-file state when they see it.
	Rotated bool
}

// Tailer owns the cursor for one log file.
type Tailer struct {
	path    string
	offset  int64
	inode   uint64
	partial []byte
}

// Open creates a tailer starting at the beginning of path. The file
// does not need to exist yet; Poll reports ErrSourceUnavailable until
// it does.
func Open(path string) *Tailer {
	return &Tailer{path: path}
}

// Cursor returns the current byte offset and file identity, for
// persistence across restarts.
func (t *Tailer) Cursor() (offset int64, inode uint64) {
	return t.offset, t.inode
}

// SetCursor restores a previously persisted cursor. It is ignored when
// the identity no longer matches the file on disk, forcing a re-read
// from the start.
func (t *Tailer) SetCursor(offset int64, inode uint64) {
	var st unix.Stat_t
	if err := unix.Stat(t.path, &st); err != nil {
		return
	}
	if st.Ino != inode || st.Size < offset {
		return
	}
	t.offset = offset
	t.inode = inode
}

// Poll reads newly appended complete lines. A partial trailing line is
// buffered and emitted once its terminator arrives. After rotation the
// cursor resets to zero and the first returned Line is a Rotated marker.
func (t *Tailer) Poll() ([]Line, error) {
	var st unix.Stat_t
	if err := unix.Stat(t.path, &st); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, t.path)
	}

	rotated := false
	if t.inode != 0 && (st.Ino != t.inode || st.Size < t.offset) {
		t.offset = 0
		t.partial = nil
		rotated = true
	}
	t.inode = st.Ino

	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, t.path)
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", t.path, err)
	}

	buf := make([]byte, maxPollBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	buf = buf[:n]
	t.offset += int64(n)

	var lines []Line
	if rotated {
		lines = append(lines, Line{Rotated: true})
	}

	start := t.offset - int64(n) - int64(len(t.partial))
	data := append(t.partial, buf...)
	t.partial = nil

	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			// no terminator yet, hold until the next poll
			t.partial = data
			break
		}
		text := string(bytes.TrimRight(data[:idx], "\r"))
		if text != "" {
			lines = append(lines, Line{Text: text, Offset: start})
		}
		start += int64(idx + 1)
		data = data[idx+1:]
	}

	return lines, nil
}
