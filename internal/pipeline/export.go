package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/errs"

	"mbutil/internal/mbtiles"
	"mbutil/internal/tileset"
	"mbutil/internal/utfgrid"
)

// ExportStats outcome of an export
type ExportStats struct {
	RunID string
	Tiles int
	Grids int
}

// Export writes every tile and grid of the container at input into a new
// directory tree at output. Any write failure aborts the export.
func Export(ctx context.Context, input, output string, opts Options) (_ *ExportStats, err error) {
	start := time.Now()
	log, id := opts.runLogger("export")
	log.Infof("exporting %s -> %s (scheme %s)", input, output, opts.Scheme)

	if _, err := os.Stat(output); err == nil {
		return nil, IOError.New("directory %s already exists", output)
	} else if !os.IsNotExist(err) {
		return nil, IOError.Wrap(err)
	}

	store, err := mbtiles.Open(input, mbtiles.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	meta, err := store.AllMetadata()
	if err != nil {
		return nil, err
	}
	format := opts.Format
	if stored := meta["format"]; stored != "" {
		format, err = tileset.ParseFormat(stored)
		if err != nil {
			return nil, mbtiles.ContainerError.New("%s: unsupported tile format %q", input, stored)
		}
	} else {
		log.Warnf("no format in metadata, writing .%s files", format.Ext())
	}

	if err := os.MkdirAll(output, 0755); err != nil {
		return nil, IOError.Wrap(err)
	}

	stats := &ExportStats{RunID: id}
	if stats.Tiles, err = exportTiles(ctx, store, output, format, opts, log); err != nil {
		return nil, err
	}
	if stats.Grids, err = exportGrids(ctx, store, output, opts, log); err != nil {
		return nil, err
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if err := writeFile(output, []string{MetadataFile}, b); err != nil {
		return nil, err
	}

	log.Infof("%d tiles, %d grids exported in %.3fs", stats.Tiles, stats.Grids, time.Since(start).Seconds())
	return stats, nil
}

func exportTiles(ctx context.Context, store *mbtiles.Store, output string, format tileset.Format, opts Options, log logrus.FieldLogger) (n int, err error) {
	total, err := store.TileCount()
	if err != nil {
		return 0, err
	}
	bar := opts.newBar(int(total), "Tiles ")
	defer func() { opts.finishBar(bar, fmt.Sprintf("%d tiles exported", n)) }()

	it, err := store.TileCoordinates()
	if err != nil {
		return 0, err
	}
	defer func() { err = errs.Combine(err, it.Close()) }()

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		tile := it.Tile()
		data, err := store.GetTile(tile)
		if err != nil {
			return n, err
		}
		parts, err := tileset.ToPath(tile, opts.Scheme, format.Ext())
		if err != nil {
			return n, err
		}
		if err := writeFile(output, parts, data); err != nil {
			return n, err
		}
		bar.Increment()
		n++
		log.Debugf("tile(z:%d, x:%d, y:%d) -> %v", tile.Z, tile.X, tile.Y, parts)
	}
	return n, nil
}

func exportGrids(ctx context.Context, store *mbtiles.Store, output string, opts Options, log logrus.FieldLogger) (n int, err error) {
	it, err := store.GridCoordinates()
	if err != nil {
		return 0, err
	}
	defer func() { err = errs.Combine(err, it.Close()) }()

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		tile := it.Tile()
		g, err := store.GetGrid(tile)
		if err != nil {
			return n, err
		}
		doc := g.Grid
		if len(g.Data) > 0 {
			if err := utfgrid.Merge(doc, g.Data); err != nil {
				return n, err
			}
		}
		b, err := utfgrid.Encode(doc, opts.GridCallback)
		if err != nil {
			return n, err
		}
		parts, err := tileset.ToPath(tile, opts.Scheme, tileset.GridExt)
		if err != nil {
			return n, err
		}
		if err := writeFile(output, parts, b); err != nil {
			return n, err
		}
		n++
		log.Debugf("grid(z:%d, x:%d, y:%d) -> %v", tile.Z, tile.X, tile.Y, parts)
	}
	return n, nil
}
