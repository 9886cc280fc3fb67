package mbtiles

import (
	"database/sql"
)

// Metadata keys every container is expected to carry.
var RequiredKeys = []string{"name", "type", "version", "description", "format", "bounds", "minzoom", "maxzoom"}

// SetMetadata inserts or replaces a metadata entry.
func (s *Store) SetMetadata(name, value string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.exec(`INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?);`, name, value); err != nil {
		return err
	}
	return s.record()
}

// SetAllMetadata writes every entry of meta.
func (s *Store) SetAllMetadata(meta map[string]string) error {
	for name, value := range meta {
		if err := s.SetMetadata(name, value); err != nil {
			return err
		}
	}
	return nil
}

// GetMetadata returns the value stored under name.
func (s *Store) GetMetadata(name string) (string, error) {
	var value sql.NullString
	err := s.reader().QueryRow(`SELECT value FROM metadata WHERE name = ?;`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound.New("metadata %q", name)
	}
	if err != nil {
		return "", ContainerError.Wrap(err)
	}
	return value.String, nil
}

// AllMetadata returns every metadata entry. An empty container yields an
// empty, non-nil map.
func (s *Store) AllMetadata() (map[string]string, error) {
	rows, err := s.reader().Query(`SELECT name, value FROM metadata;`)
	if err != nil {
		return nil, ContainerError.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	meta := map[string]string{}
	for rows.Next() {
		var name, value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, ContainerError.Wrap(err)
		}
		if !name.Valid {
			continue
		}
		meta[name.String] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, ContainerError.Wrap(err)
	}
	return meta, nil
}
