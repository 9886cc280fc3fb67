package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/errs"

	"mbutil/internal/mbtiles"
	"mbutil/internal/tileset"
	"mbutil/internal/utfgrid"
)

// MetadataFile name of the metadata document at the root of a tile tree
const MetadataFile = "metadata.json"

// overlayExt extension of files carrying a separate grid data overlay
const overlayExt = "data.json"

// ImportStats outcome of an import
type ImportStats struct {
	RunID   string
	Tiles   int
	Grids   int
	Skipped int
	MinZoom maptile.Zoom
	MaxZoom maptile.Zoom
}

type leaf struct {
	path string
	tile maptile.Tile
}

// discovery leaf files of a tile tree classified by kind
type discovery struct {
	root     string
	tiles    []leaf
	grids    []leaf
	overlays map[maptile.Tile]string
	metadata string
	skipped  int
}

// Import reads the tile tree at input into the container at output. A
// container already at output is reused, tiles at the same coordinate are
// replaced.
func Import(ctx context.Context, input, output string, opts Options) (*ImportStats, error) {
	start := time.Now()
	log, id := opts.runLogger("import")
	log.Infof("importing %s -> %s (scheme %s, format %s)", input, output, opts.Scheme, opts.Format)

	info, err := os.Stat(input)
	if err != nil {
		return nil, IOError.Wrap(err)
	}
	if !info.IsDir() {
		return nil, IOError.New("can only import from a directory: %s", input)
	}

	found, err := discover(ctx, input, opts, log)
	if err != nil {
		return nil, err
	}
	if len(found.tiles) == 0 {
		return nil, EmptyInputError.New("no %s tiles found in %s under %s scheme", opts.Format, input, opts.Scheme)
	}
	log.Infof("found %d tiles, %d grids", len(found.tiles), len(found.grids))

	store, err := mbtiles.Open(output, mbtiles.CreateNew, mbtiles.WithBatchSize(opts.BatchSize))
	if err != nil {
		return nil, err
	}
	stats, err := ingest(ctx, store, found, opts, log)
	if err != nil {
		log.Errorf("import aborted, %s may hold a partial container", output)
		return nil, errs.Combine(err, store.Close())
	}
	stats.RunID = id

	log.Info("optimizing container")
	if err := store.Optimize(); err != nil {
		return nil, errs.Combine(err, store.Close())
	}
	if err := store.Close(); err != nil {
		return nil, err
	}
	log.Infof("%d tiles, %d grids imported, %d files skipped in %.3fs",
		stats.Tiles, stats.Grids, stats.Skipped, time.Since(start).Seconds())
	return stats, nil
}

// discover walks the tile tree and classifies every visible leaf file.
func discover(ctx context.Context, root string, opts Options, log logrus.FieldLogger) (*discovery, error) {
	found := &discovery{root: root, overlays: map[maptile.Tile]string{}}
	depth := opts.Scheme.Depth()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			log.Warnf("skipping %s: %v", path, err)
			found.skipped++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if len(parts) >= depth {
				log.Warnf("skipping %s: deeper than the %s layout", path, opts.Scheme)
				found.skipped++
				return filepath.SkipDir
			}
			return nil
		}
		if rel == MetadataFile {
			found.metadata = path
			return nil
		}

		tile, ext, err := tileset.FromPath(parts, opts.Scheme)
		if err != nil {
			log.Warnf("skipping %s: %v", path, err)
			found.skipped++
			return nil
		}
		kind := classify(ext, opts.Format)
		if kind == kindUnknown {
			log.Warnf("skipping %s: extension %q does not match format %s", path, ext, opts.Format)
			found.skipped++
			return nil
		}
		if !tileset.Valid(tile) {
			log.Warnf("skipping %s: tile %d/%d/%d outside of pyramid", path, tile.Z, tile.X, tile.Y)
			found.skipped++
			return nil
		}

		switch kind {
		case kindTile:
			found.tiles = append(found.tiles, leaf{path: path, tile: tile})
		case kindGrid:
			found.grids = append(found.grids, leaf{path: path, tile: tile})
		case kindOverlay:
			found.overlays[tile] = path
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, IOError.Wrap(err)
	}
	return found, nil
}

type kind int

const (
	kindUnknown kind = iota
	kindTile
	kindGrid
	kindOverlay
)

func classify(ext string, format tileset.Format) kind {
	switch {
	case format.MatchExt(ext):
		return kindTile
	case strings.EqualFold(ext, tileset.GridExt), strings.EqualFold(ext, "json"):
		return kindGrid
	case strings.EqualFold(ext, overlayExt):
		return kindOverlay
	}
	return kindUnknown
}

// ingest writes the discovered files into store and its metadata.
func ingest(ctx context.Context, store *mbtiles.Store, found *discovery, opts Options, log logrus.FieldLogger) (*ImportStats, error) {
	stats := &ImportStats{Skipped: found.skipped}
	sum := newSummary()

	bar := opts.newBar(len(found.tiles)+len(found.grids), "Import ")
	defer func() {
		opts.finishBar(bar, fmt.Sprintf("%d tiles, %d grids imported", stats.Tiles, stats.Grids))
	}()

	for _, l := range found.tiles {
		if err := ctx.Err(); err != nil {
			return nil, errs.Combine(err, store.Flush())
		}
		bar.Increment()
		data, err := os.ReadFile(l.path)
		if err != nil {
			log.Warnf("skipping %s: %v", l.path, err)
			stats.Skipped++
			continue
		}
		if !acceptContent(l.path, data, opts, log) {
			stats.Skipped++
			continue
		}
		if err := store.PutTile(mbtiles.Tile{T: l.tile, C: data}); err != nil {
			return nil, err
		}
		sum.observe(l.tile)
		stats.Tiles++
		log.Debugf("tile(z:%d, x:%d, y:%d), %.2f kb", l.tile.Z, l.tile.X, l.tile.Y, float32(len(data))/1024.0)
	}

	for _, l := range found.grids {
		if err := ctx.Err(); err != nil {
			return nil, errs.Combine(err, store.Flush())
		}
		bar.Increment()
		doc, err := readGrid(l, found, opts)
		if err != nil {
			log.Warnf("skipping %s: %v", l.path, err)
			stats.Skipped++
			continue
		}
		err = store.PutGrid(mbtiles.Grid{T: l.tile, Grid: doc})
		if utfgrid.GridFormatError.Has(err) {
			log.Warnf("skipping %s: %v", l.path, err)
			stats.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		stats.Grids++
		log.Debugf("grid(z:%d, x:%d, y:%d), %d keys", l.tile.Z, l.tile.X, l.tile.Y, len(utfgrid.Keys(doc)))
	}
	for tile, path := range found.overlays {
		log.Warnf("skipping %s: no grid for tile %d/%d/%d", path, tile.Z, tile.X, tile.Y)
		stats.Skipped++
	}

	if sum.empty() {
		return nil, EmptyInputError.New("none of the %d tile files could be imported", len(found.tiles))
	}
	stats.MinZoom, stats.MaxZoom = sum.minZoom(), sum.maxZoom()

	meta := buildMetadata(sum, found, opts, log)
	if err := store.SetAllMetadata(meta); err != nil {
		return nil, err
	}
	return stats, nil
}

// acceptContent compares sniffed content against the configured format.
func acceptContent(path string, data []byte, opts Options, log logrus.FieldLogger) bool {
	if len(data) == 0 {
		log.Warnf("skipping %s: empty tile", path)
		return false
	}
	want := opts.Format.MIME()
	if want == "" {
		return true
	}
	got := mimetype.Detect(data)
	if got.Is(want) {
		return true
	}
	if opts.StrictFormat {
		log.Warnf("skipping %s: content is %s, not %s", path, got.String(), want)
		return false
	}
	log.Warnf("%s: content is %s, not %s", path, got.String(), want)
	return true
}

// readGrid decodes a grid file and merges its sibling overlay, if any. The
// overlay is consumed even when the grid turns out to be unusable.
func readGrid(l leaf, found *discovery, opts Options) (map[string]interface{}, error) {
	overlay, hasOverlay := found.overlays[l.tile]
	delete(found.overlays, l.tile)

	b, err := os.ReadFile(l.path)
	if err != nil {
		return nil, IOError.Wrap(err)
	}
	doc, err := utfgrid.Decode(b, opts.GridCallback)
	if err != nil {
		return nil, err
	}
	if hasOverlay {
		ob, err := os.ReadFile(overlay)
		if err != nil {
			return nil, IOError.Wrap(err)
		}
		data, err := utfgrid.Decode(ob, "")
		if err != nil {
			return nil, err
		}
		if err := utfgrid.Merge(doc, data); err != nil {
			return nil, err
		}
	}
	if opts.RequireGridData {
		if _, ok := doc[utfgrid.FieldData]; !ok {
			return nil, utfgrid.GridFormatError.New("grid has no %s", utfgrid.FieldData)
		}
	}
	return doc, nil
}

// buildMetadata layers defaults, derived values, the tree's metadata.json
// and the configured name and description, later layers winning.
func buildMetadata(sum *summary, found *discovery, opts Options, log logrus.FieldLogger) map[string]string {
	meta := map[string]string{
		"name":        filepath.Base(filepath.Clean(found.root)),
		"type":        "baselayer",
		"version":     "1.0.0",
		"description": "",
	}
	for k, v := range sum.metadata(opts.Format.Ext()) {
		meta[k] = v
	}
	if found.metadata != "" {
		overrides, err := readMetadataFile(found.metadata)
		if err != nil {
			log.Warnf("ignoring %s: %v", found.metadata, err)
		} else {
			for k, v := range overrides {
				meta[k] = v
			}
			log.Infof("%s was restored", found.metadata)
		}
	}
	if opts.Name != "" {
		meta["name"] = opts.Name
	}
	if opts.Description != "" {
		meta["description"] = opts.Description
	}
	return meta
}

func readMetadataFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			meta[k] = v
		case nil:
		default:
			enc, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			meta[k] = string(enc)
		}
	}
	return meta, nil
}
