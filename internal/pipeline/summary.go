package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type tileRange struct {
	minX, maxX, minY, maxY uint32
}

// summary tile ranges per zoom level seen during an import
type summary struct {
	zooms map[maptile.Zoom]*tileRange
}

func newSummary() *summary {
	return &summary{zooms: map[maptile.Zoom]*tileRange{}}
}

func (s *summary) observe(t maptile.Tile) {
	r, ok := s.zooms[t.Z]
	if !ok {
		s.zooms[t.Z] = &tileRange{minX: t.X, maxX: t.X, minY: t.Y, maxY: t.Y}
		return
	}
	if t.X < r.minX {
		r.minX = t.X
	}
	if t.X > r.maxX {
		r.maxX = t.X
	}
	if t.Y < r.minY {
		r.minY = t.Y
	}
	if t.Y > r.maxY {
		r.maxY = t.Y
	}
}

func (s *summary) empty() bool {
	return len(s.zooms) == 0
}

func (s *summary) levels() []maptile.Zoom {
	levels := make([]maptile.Zoom, 0, len(s.zooms))
	for z := range s.zooms {
		levels = append(levels, z)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels
}

func (s *summary) minZoom() maptile.Zoom {
	return s.levels()[0]
}

func (s *summary) maxZoom() maptile.Zoom {
	levels := s.levels()
	return levels[len(levels)-1]
}

// bound geographic extent covered by the observed tiles
func (s *summary) bound() orb.Bound {
	var bound orb.Bound
	for i, z := range s.levels() {
		r := s.zooms[z]
		b := maptile.New(r.minX, r.minY, z).Bound().Union(maptile.New(r.maxX, r.maxY, z).Bound())
		if i == 0 {
			bound = b
			continue
		}
		bound = bound.Union(b)
	}
	return bound
}

// metadata derived entries: format, bounds, center, minzoom and maxzoom.
func (s *summary) metadata(format string) map[string]string {
	bound := s.bound()
	center := bound.Center()
	return map[string]string{
		"format":  format,
		"bounds":  joinFloats(bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()),
		"center":  fmt.Sprintf("%s,%d", joinFloats(center.Lon(), center.Lat()), s.minZoom()),
		"minzoom": strconv.Itoa(int(s.minZoom())),
		"maxzoom": strconv.Itoa(int(s.maxZoom())),
	}
}

func joinFloats(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(parts, ",")
}
