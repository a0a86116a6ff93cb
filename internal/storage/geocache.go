package storage

import "fmt"

// GeoStore persists resolved IP→country entries so lookups survive
// restarts. Implements geo.Store.
type GeoStore struct {
	db *DB
}

// NewGeoStore creates a geo cache store.
func NewGeoStore(db *DB) *GeoStore {
	return &GeoStore{db: db}
}

// SaveEntry upserts one resolved address.
func (s *GeoStore) SaveEntry(ip, country string) error {
	query := `INSERT INTO geo_cache (ip, country) VALUES (?, ?)
			  ON CONFLICT(ip) DO UPDATE SET country = excluded.country`

	if _, err := s.db.Exec(query, ip, country); err != nil {
		return fmt.Errorf("failed to save geo entry: %w", err)
	}
	return nil
}

// All returns every persisted entry, for warming the in-process cache.
func (s *GeoStore) All() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT ip, country FROM geo_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to query geo cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var ip, country string
		if err := rows.Scan(&ip, &country); err != nil {
			return nil, fmt.Errorf("failed to scan geo entry: %w", err)
		}
		entries[ip] = country
	}

	return entries, rows.Err()
}

// Count returns the number of cached addresses.
func (s *GeoStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM geo_cache`).Scan(&count)
	return count, err
}
