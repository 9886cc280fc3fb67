package mbtiles

import (
	"database/sql"

	"github.com/paulmach/orb/maptile"

	"mbutil/internal/tileset"
)

// PutTile inserts or replaces the tile at its coordinate.
func (s *Store) PutTile(tile Tile) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := checkTile(tile.T); err != nil {
		return err
	}
	z, x, y := key(tile.T)
	err := s.exec(`INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?);`,
		z, x, y, tile.C)
	if err != nil {
		return err
	}
	return s.record()
}

// GetTile returns the tile data at t.
func (s *Store) GetTile(t maptile.Tile) ([]byte, error) {
	if err := checkTile(t); err != nil {
		return nil, ErrNotFound.New("tile %d/%d/%d", t.Z, t.X, t.Y)
	}
	z, x, y := key(t)
	var data []byte
	err := s.reader().QueryRow(`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?;`,
		z, x, y).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound.New("tile %d/%d/%d", t.Z, t.X, t.Y)
	}
	if err != nil {
		return nil, ContainerError.Wrap(err)
	}
	return data, nil
}

// TileCount number of stored tiles
func (s *Store) TileCount() (int64, error) {
	var n int64
	if err := s.reader().QueryRow(`SELECT count(*) FROM tiles;`).Scan(&n); err != nil {
		return 0, ContainerError.Wrap(err)
	}
	return n, nil
}

// TileCoordinates iterates the coordinates of all stored tiles, ordered by
// zoom, column and stored row.
func (s *Store) TileCoordinates() (*CoordIter, error) {
	return s.coordinates(`SELECT zoom_level, tile_column, tile_row FROM tiles ORDER BY zoom_level, tile_column, tile_row;`)
}

func (s *Store) coordinates(query string) (*CoordIter, error) {
	if s.db == nil {
		return nil, ContainerError.New("%s is closed", s.path)
	}
	if s.mode == ReadOnly {
		rows, err := s.db.Query(query)
		if err != nil {
			return nil, ContainerError.Wrap(err)
		}
		return &CoordIter{rows: rows}, nil
	}

	// A write-mode store has one connection; read the keys up front so the
	// caller can keep using the store while iterating.
	rows, err := s.reader().Query(query)
	if err != nil {
		return nil, ContainerError.Wrap(err)
	}
	it := &CoordIter{rows: rows}
	var tiles []maptile.Tile
	for it.Next() {
		tiles = append(tiles, it.Tile())
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return &CoordIter{buffered: tiles, pos: -1}, nil
}

// CoordIter lazy sequence of tile coordinates
type CoordIter struct {
	rows *sql.Rows
	cur  maptile.Tile
	err  error

	buffered []maptile.Tile
	pos      int
}

// Next advances to the next coordinate.
func (it *CoordIter) Next() bool {
	if it.rows == nil {
		if it.pos+1 >= len(it.buffered) {
			return false
		}
		it.pos++
		it.cur = it.buffered[it.pos]
		return true
	}
	if it.err != nil || !it.rows.Next() {
		return false
	}
	var z, x, y int64
	if err := it.rows.Scan(&z, &x, &y); err != nil {
		it.err = ContainerError.Wrap(err)
		return false
	}
	if z < 0 || z > tileset.MaxZoom || x < 0 || y < 0 || x >= 1<<uint(z) || y >= 1<<uint(z) {
		it.err = ContainerError.New("stored tile %d/%d/%d outside of pyramid", z, x, y)
		return false
	}
	zoom := maptile.Zoom(z)
	it.cur = maptile.New(uint32(x), tileset.FlipY(zoom, uint32(y)), zoom)
	return true
}

// Tile current coordinate
func (it *CoordIter) Tile() maptile.Tile {
	return it.cur
}

// Err first error met while iterating
func (it *CoordIter) Err() error {
	if it.err != nil {
		return it.err
	}
	if it.rows != nil {
		return ContainerError.Wrap(it.rows.Err())
	}
	return nil
}

// Close releases the iterator.
func (it *CoordIter) Close() error {
	if it.rows == nil {
		return nil
	}
	if err := it.rows.Close(); err != nil {
		return ContainerError.Wrap(err)
	}
	return it.Err()
}
