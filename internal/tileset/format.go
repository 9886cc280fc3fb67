package tileset

import (
	"strings"
)

// Format tile image format
type Format string

// Constants representing TileFormat types
const (
	PNG  Format = "png"
	JPG  Format = "jpg"
	PBF  Format = "pbf"
	WEBP Format = "webp"
)

// GridExt extension of UTFGrid files
const GridExt = "grid.json"

// ParseFormat parses an image format name, accepting "jpeg" for jpg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPG, nil
	case "webp":
		return WEBP, nil
	case "pbf", "mvt":
		return PBF, nil
	}
	return "", Error.New("unsupported image format %q", s)
}

// Ext file extension
func (f Format) Ext() string {
	return string(f)
}

// MatchExt reports whether a file extension belongs to the format.
func (f Format) MatchExt(ext string) bool {
	ext = strings.ToLower(ext)
	if ext == string(f) {
		return true
	}
	return f == JPG && ext == "jpeg"
}

// MIME content type expected for tiles of this format, empty for pbf.
func (f Format) MIME() string {
	switch f {
	case PNG:
		return "image/png"
	case JPG:
		return "image/jpeg"
	case WEBP:
		return "image/webp"
	}
	return ""
}
