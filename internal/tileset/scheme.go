// Package tileset maps tile coordinates to directory layouts and back.
package tileset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
	"github.com/zeebo/errs"
)

var (
	// Error is the error class for invalid schemes and formats.
	Error = errs.Class("tileset")
	// PathFormatError is returned for paths that do not parse under a scheme.
	PathFormatError = errs.Class("path format")
)

// MaxZoom deepest zoom level a path may carry
const MaxZoom = 30

// wmsMax first column/row the wms layout cannot express
const wmsMax = 1000 * 1000 * 1000

// Scheme directory addressing convention
type Scheme int

// Supported schemes
const (
	XYZ Scheme = iota
	TMS
	WMS
)

// ParseScheme parses xyz, tms or wms.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xyz":
		return XYZ, nil
	case "tms":
		return TMS, nil
	case "wms":
		return WMS, nil
	}
	return XYZ, Error.New("unsupported scheme %q", s)
}

func (s Scheme) String() string {
	switch s {
	case XYZ:
		return "xyz"
	case TMS:
		return "tms"
	case WMS:
		return "wms"
	}
	return fmt.Sprintf("Scheme(%d)", int(s))
}

// Depth number of path fragments a tile path has under the scheme.
func (s Scheme) Depth() int {
	if s == WMS {
		return 7
	}
	return 3
}

// FlipY converts a row between xyz and tms counting. FlipY(z, FlipY(z, y)) == y.
func FlipY(z maptile.Zoom, y uint32) uint32 {
	return (1 << uint32(z)) - 1 - y
}

// Valid reports whether t lies inside the pyramid of its zoom level.
func Valid(t maptile.Tile) bool {
	if t.Z > MaxZoom {
		return false
	}
	n := uint32(1) << uint32(t.Z)
	return t.X < n && t.Y < n
}

// ToPath returns the path fragments of tile t under scheme s, the last one
// carrying the extension ext.
func ToPath(t maptile.Tile, s Scheme, ext string) ([]string, error) {
	if t.Z > MaxZoom {
		return nil, PathFormatError.New("zoom %d exceeds %d", t.Z, MaxZoom)
	}
	switch s {
	case XYZ, TMS:
		if !Valid(t) {
			return nil, PathFormatError.New("tile %d/%d/%d outside of pyramid", t.Z, t.X, t.Y)
		}
		y := t.Y
		if s == TMS {
			y = FlipY(t.Z, y)
		}
		return []string{
			strconv.Itoa(int(t.Z)),
			strconv.FormatUint(uint64(t.X), 10),
			fileName(strconv.FormatUint(uint64(y), 10), ext),
		}, nil
	case WMS:
		if t.X >= wmsMax || t.Y >= wmsMax {
			return nil, PathFormatError.New("tile %d/%d/%d too large for wms layout", t.Z, t.X, t.Y)
		}
		x, y := wmsGroups(t.X), wmsGroups(t.Y)
		return []string{
			fmt.Sprintf("%02d", t.Z),
			x[0], x[1], x[2],
			y[0], y[1],
			fileName(y[2], ext),
		}, nil
	}
	return nil, Error.New("unsupported scheme %v", s)
}

// FromPath parses the path fragments of a tile file, relative to the tile
// root, into the canonical xyz tile and the file extension.
func FromPath(parts []string, s Scheme) (maptile.Tile, string, error) {
	if len(parts) != s.Depth() {
		return maptile.Tile{}, "", PathFormatError.New("%s: expected %d path segments, got %d",
			strings.Join(parts, "/"), s.Depth(), len(parts))
	}
	stem, ext := splitName(parts[len(parts)-1])
	if ext == "" {
		return maptile.Tile{}, "", PathFormatError.New("%s: missing extension", strings.Join(parts, "/"))
	}

	z, err := parseNumber(parts[0])
	if err != nil {
		return maptile.Tile{}, "", err
	}
	if z > MaxZoom {
		return maptile.Tile{}, "", PathFormatError.New("zoom %d exceeds %d", z, MaxZoom)
	}

	var t maptile.Tile
	switch s {
	case XYZ, TMS:
		x, err := parseNumber(parts[1])
		if err != nil {
			return maptile.Tile{}, "", err
		}
		y, err := parseNumber(stem)
		if err != nil {
			return maptile.Tile{}, "", err
		}
		t = maptile.New(x, y, maptile.Zoom(z))
		if !Valid(t) {
			return maptile.Tile{}, "", PathFormatError.New("tile %d/%d/%d outside of pyramid", z, x, y)
		}
		if s == TMS {
			t.Y = FlipY(t.Z, t.Y)
		}
	case WMS:
		x, err := joinGroups(parts[1:4])
		if err != nil {
			return maptile.Tile{}, "", err
		}
		y, err := joinGroups([]string{parts[4], parts[5], stem})
		if err != nil {
			return maptile.Tile{}, "", err
		}
		t = maptile.New(x, y, maptile.Zoom(z))
	default:
		return maptile.Tile{}, "", Error.New("unsupported scheme %v", s)
	}
	return t, ext, nil
}

func fileName(stem, ext string) string {
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

// splitName splits at the first dot so "3.grid.json" yields "3", "grid.json".
func splitName(name string) (string, string) {
	i := strings.IndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, PathFormatError.New("invalid number %q", s)
	}
	return uint32(v), nil
}

// wmsGroups splits v into millions, thousands and units, zero padded.
func wmsGroups(v uint32) [3]string {
	return [3]string{
		fmt.Sprintf("%03d", v/1000000),
		fmt.Sprintf("%03d", (v/1000)%1000),
		fmt.Sprintf("%03d", v%1000),
	}
}

func joinGroups(groups []string) (uint32, error) {
	var v uint32
	for _, g := range groups {
		if len(g) != 3 {
			return 0, PathFormatError.New("invalid wms group %q", g)
		}
		n, err := parseNumber(g)
		if err != nil {
			return 0, err
		}
		v = v*1000 + n
	}
	return v, nil
}
