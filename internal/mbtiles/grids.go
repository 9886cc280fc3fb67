package mbtiles

import (
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/paulmach/orb/maptile"

	"mbutil/internal/utfgrid"
)

// PutGrid inserts or replaces the grid at its coordinate. The grid is stored
// zlib-compressed without its data field; each data entry becomes a
// grid_data row. A data field left in Grid is split out and merged with Data.
func (s *Store) PutGrid(g Grid) error {
	if err := s.writable(); err != nil {
		return err
	}
	if !s.hasGrids {
		return ContainerError.New("%s has no grid tables", s.path)
	}
	if err := checkTile(g.T); err != nil {
		return err
	}

	grid, data, err := utfgrid.Split(g.Grid)
	if err != nil {
		return err
	}
	if len(g.Data) > 0 {
		merged := make(map[string]interface{}, len(data)+len(g.Data))
		for k, v := range data {
			merged[k] = v
		}
		doc := map[string]interface{}{utfgrid.FieldData: merged}
		if err := utfgrid.Merge(doc, g.Data); err != nil {
			return err
		}
		data = merged
	}

	blob, err := utfgrid.Compress(grid)
	if err != nil {
		return err
	}

	z, x, y := key(g.T)
	err = s.exec(`INSERT OR REPLACE INTO grids (zoom_level, tile_column, tile_row, grid) VALUES (?, ?, ?, ?);`,
		z, x, y, blob)
	if err != nil {
		return err
	}
	err = s.exec(`DELETE FROM grid_data WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?;`, z, x, y)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := json.Marshal(data[name])
		if err != nil {
			return utfgrid.GridFormatError.Wrap(err)
		}
		err = s.exec(`INSERT OR REPLACE INTO grid_data (zoom_level, tile_column, tile_row, key_name, key_json) VALUES (?, ?, ?, ?, ?);`,
			z, x, y, name, string(b))
		if err != nil {
			return err
		}
	}
	return s.record()
}

// GetGrid returns the grid at t with its data overlay, nil Data when the grid
// has none.
func (s *Store) GetGrid(t maptile.Tile) (*Grid, error) {
	if !s.hasGrids || checkTile(t) != nil {
		return nil, ErrNotFound.New("grid %d/%d/%d", t.Z, t.X, t.Y)
	}
	z, x, y := key(t)

	var blob []byte
	err := s.reader().QueryRow(`SELECT grid FROM grids WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?;`,
		z, x, y).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound.New("grid %d/%d/%d", t.Z, t.X, t.Y)
	}
	if err != nil {
		return nil, ContainerError.Wrap(err)
	}
	grid, err := utfgrid.Decompress(blob)
	if err != nil {
		return nil, err
	}

	rows, err := s.reader().Query(`SELECT key_name, key_json FROM grid_data WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?;`,
		z, x, y)
	if err != nil {
		return nil, ContainerError.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var data map[string]interface{}
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, ContainerError.Wrap(err)
		}
		v, err := utfgrid.DecodeValue([]byte(raw))
		if err != nil {
			return nil, utfgrid.GridFormatError.New("grid_data %q: %v", name, err)
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		data[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, ContainerError.Wrap(err)
	}
	return &Grid{T: t, Grid: grid, Data: data}, nil
}

// GridCoordinates iterates the coordinates of all stored grids.
func (s *Store) GridCoordinates() (*CoordIter, error) {
	if !s.hasGrids {
		return &CoordIter{pos: -1}, nil
	}
	return s.coordinates(`SELECT zoom_level, tile_column, tile_row FROM grids ORDER BY zoom_level, tile_column, tile_row;`)
}
