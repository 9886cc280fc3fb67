// Package mbtiles stores tiles, UTFGrids and metadata in an MBTiles SQLite
// container. Rows are kept in TMS order on disk as MBTiles readers expect;
// every coordinate crossing the package API is xyz.
package mbtiles

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/paulmach/orb/maptile"
	"github.com/zeebo/errs"

	"mbutil/internal/tileset"
)

var (
	// ContainerError cannot open, create, read or write the container.
	ContainerError = errs.Class("container")
	// ErrNotFound no tile, grid or metadata entry at the requested key.
	ErrNotFound = errs.Class("not found")
)

// DefaultBatchSize records written per transaction
const DefaultBatchSize = 1000

// Mode how a container is opened
type Mode int

// Open modes
const (
	// ReadOnly opens an existing container for reading.
	ReadOnly Mode = iota
	// ReadWrite opens an existing container for reading and writing.
	ReadWrite
	// CreateNew creates the container and its schema if missing. An existing
	// container is reused so repeated imports overwrite instead of duplicate.
	CreateNew
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case CreateNew:
		return "rwc"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

const schema = `
PRAGMA application_id = 0x4d504258;
CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);
CREATE TABLE IF NOT EXISTS grids (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, grid BLOB);
CREATE TABLE IF NOT EXISTS grid_data (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, key_name TEXT, key_json TEXT);
CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name);
CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
CREATE UNIQUE INDEX IF NOT EXISTS grid_index ON grids (zoom_level, tile_column, tile_row);
CREATE UNIQUE INDEX IF NOT EXISTS grid_data_index ON grid_data (zoom_level, tile_column, tile_row, key_name);
`

const pragmas = `
PRAGMA synchronous=0;
PRAGMA locking_mode=EXCLUSIVE;
PRAGMA journal_mode=DELETE;
`

// Tile stored tile
type Tile struct {
	T maptile.Tile
	C []byte
}

// Grid stored UTFGrid: the grid document without its data field, and the
// data overlay keyed by grid key.
type Grid struct {
	T    maptile.Tile
	Grid map[string]interface{}
	Data map[string]interface{}
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize sets the number of writes committed per transaction.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// Store an open MBTiles container
type Store struct {
	path      string
	mode      Mode
	db        *sql.DB
	batchSize int

	tx      *sql.Tx
	pending int

	hasGrids bool
}

// Open opens the container at path.
func Open(path string, mode Mode, opts ...Option) (*Store, error) {
	s := &Store{
		path:      path,
		mode:      mode,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch mode {
	case ReadOnly, ReadWrite:
		info, err := os.Stat(path)
		if err != nil {
			return nil, ContainerError.New("container %s not found: %v", path, err)
		}
		if info.IsDir() {
			return nil, ContainerError.New("container %s is a directory", path)
		}
	case CreateNew:
	default:
		return nil, ContainerError.New("unsupported open mode %v", mode)
	}

	db, err := sql.Open("sqlite3", dsn(path, mode))
	if err != nil {
		return nil, ContainerError.Wrap(err)
	}
	s.db = db

	if mode != ReadOnly {
		// pragmas are per connection
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(pragmas); err != nil {
			return nil, errs.Combine(ContainerError.New("%s: %v", path, err), db.Close())
		}
	}
	if mode == CreateNew {
		if _, err := db.Exec(schema); err != nil {
			return nil, errs.Combine(ContainerError.New("%s: create schema: %v", path, err), db.Close())
		}
	}
	if err := s.check(); err != nil {
		return nil, errs.Combine(err, db.Close())
	}
	return s, nil
}

func dsn(path string, mode Mode) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
	return fmt.Sprintf("file:%s?mode=%s", escaped, mode)
}

// check verifies the file holds an MBTiles schema.
func (s *Store) check() error {
	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type IN ('table', 'view')`)
	if err != nil {
		return ContainerError.New("%s is not a valid container: %v", s.path, err)
	}
	defer func() { _ = rows.Close() }()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return ContainerError.Wrap(err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return ContainerError.New("%s is not a valid container: %v", s.path, err)
	}
	if !found["tiles"] || !found["metadata"] {
		return ContainerError.New("%s is not a valid container: missing tiles or metadata table", s.path)
	}
	s.hasGrids = found["grids"] && found["grid_data"]
	return nil
}

// Path of the container file
func (s *Store) Path() string {
	return s.path
}

// BatchSize writes per transaction
func (s *Store) BatchSize() int {
	return s.batchSize
}

type queryer interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// reader returns the open transaction when there is one, since write modes
// run on a single connection.
func (s *Store) reader() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) writable() error {
	if s.mode == ReadOnly {
		return ContainerError.New("%s is opened read-only", s.path)
	}
	if s.db == nil {
		return ContainerError.New("%s is closed", s.path)
	}
	return nil
}

// exec runs a write inside the current batch transaction.
func (s *Store) exec(query string, args ...interface{}) error {
	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return ContainerError.Wrap(err)
		}
		s.tx = tx
	}
	if _, err := s.tx.Exec(query, args...); err != nil {
		return ContainerError.Wrap(err)
	}
	return nil
}

// record counts one logical write and commits once the batch is full.
func (s *Store) record() error {
	s.pending++
	if s.pending >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush commits the open batch.
func (s *Store) Flush() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.pending = 0
	if err := tx.Commit(); err != nil {
		return ContainerError.Wrap(err)
	}
	return nil
}

// Optimize commits pending writes and runs ANALYZE and VACUUM.
func (s *Store) Optimize() error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if _, err := s.db.Exec("ANALYZE;"); err != nil {
		return ContainerError.New("analyze: %v", err)
	}
	if _, err := s.db.Exec("VACUUM;"); err != nil {
		return ContainerError.New("vacuum: %v", err)
	}
	return nil
}

// Close flushes pending writes and releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	var group errs.Group
	if s.tx != nil {
		group.Add(s.Flush())
	}
	group.Add(ContainerError.Wrap(s.db.Close()))
	s.db = nil
	return group.Err()
}

func checkTile(t maptile.Tile) error {
	if !tileset.Valid(t) {
		return ContainerError.New("tile %d/%d/%d outside of pyramid", t.Z, t.X, t.Y)
	}
	return nil
}

// key converts an xyz tile into the stored (zoom_level, tile_column, tile_row).
func key(t maptile.Tile) (int64, int64, int64) {
	return int64(t.Z), int64(t.X), int64(tileset.FlipY(t.Z, t.Y))
}
