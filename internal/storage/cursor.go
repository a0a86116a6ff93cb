package storage

import (
	"database/sql"
	"fmt"
)

// CursorStore persists tail cursors per log path. Losing a cursor is
// harmless: the tailer re-reads from the start and downstream
// application is idempotent.
type CursorStore struct {
	db *DB
}

// NewCursorStore creates a cursor store.
func NewCursorStore(db *DB) *CursorStore {
	return &CursorStore{db: db}
}

// Save upserts the cursor for one log path.
func (s *CursorStore) Save(path string, offset int64, inode uint64) error {
	query := `INSERT INTO tail_cursor (path, offset, inode, updated_at)
			  VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			  ON CONFLICT(path) DO UPDATE SET
				offset = excluded.offset,
				inode = excluded.inode,
				updated_at = CURRENT_TIMESTAMP`

	if _, err := s.db.Exec(query, path, offset, int64(inode)); err != nil {
		return fmt.Errorf("failed to save tail cursor: %w", err)
	}
	return nil
}

// Load returns the persisted cursor for a log path; ok is false when
// none is stored.
func (s *CursorStore) Load(path string) (offset int64, inode uint64, ok bool, err error) {
	var rawInode int64
	row := s.db.QueryRow(`SELECT offset, inode FROM tail_cursor WHERE path = ?`, path)
	if err := row.Scan(&offset, &rawInode); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("failed to load tail cursor: %w", err)
	}
	return offset, uint64(rawInode), true, nil
}
