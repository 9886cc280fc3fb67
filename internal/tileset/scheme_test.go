package tileset

import (
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tiles := []maptile.Tile{
		maptile.New(0, 0, 0),
		maptile.New(1, 0, 1),
		maptile.New(0, 1, 1),
		maptile.New(5, 9, 4),
		maptile.New(1234, 2047, 11),
		maptile.New(1<<20-1, 0, 20),
		maptile.New(1<<30-1, 1<<29, 30),
	}
	for _, scheme := range []Scheme{XYZ, TMS, WMS} {
		for _, tile := range tiles {
			if scheme == WMS && (tile.X >= wmsMax || tile.Y >= wmsMax) {
				continue
			}
			parts, err := ToPath(tile, scheme, "png")
			require.NoError(t, err, "%v %v", scheme, tile)
			require.Len(t, parts, scheme.Depth())

			got, ext, err := FromPath(parts, scheme)
			require.NoError(t, err, "%v %v", scheme, parts)
			assert.Equal(t, tile, got, "%v %v", scheme, parts)
			assert.Equal(t, "png", ext)
		}
	}
}

func TestFlipY(t *testing.T) {
	for z := maptile.Zoom(0); z <= MaxZoom; z++ {
		max := uint32(1)<<uint32(z) - 1
		for _, y := range []uint32{0, max / 2, max} {
			assert.Equal(t, y, FlipY(z, FlipY(z, y)))
		}
		assert.Equal(t, max, FlipY(z, 0))
	}
}

func TestToPath(t *testing.T) {
	parts, err := ToPath(maptile.New(3, 1, 2), XYZ, "png")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "1.png"}, parts)

	parts, err = ToPath(maptile.New(3, 1, 2), TMS, "jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "2.jpg"}, parts)

	parts, err = ToPath(maptile.New(1234, 5, 11), WMS, GridExt)
	require.NoError(t, err)
	assert.Equal(t, []string{"11", "000", "001", "234", "000", "000", "005.grid.json"}, parts)

	_, err = ToPath(maptile.New(2, 0, 1), XYZ, "png")
	assert.True(t, PathFormatError.Has(err))

	_, err = ToPath(maptile.New(wmsMax, 0, 30), WMS, "png")
	assert.True(t, PathFormatError.Has(err))
}

func TestWMSColumnGroups(t *testing.T) {
	parts, err := ToPath(maptile.New(1234, 0, 11), WMS, "png")
	require.NoError(t, err)
	assert.Equal(t, "001/234", parts[2]+"/"+parts[3])

	tile, _, err := FromPath([]string{"11", "000", "001", "234", "000", "000", "000.png"}, WMS)
	require.NoError(t, err)
	assert.EqualValues(t, 1234, tile.X)
}

func TestFromPathGrid(t *testing.T) {
	tile, ext, err := FromPath([]string{"1", "0", "1.grid.json"}, XYZ)
	require.NoError(t, err)
	assert.Equal(t, maptile.New(0, 1, 1), tile)
	assert.Equal(t, GridExt, ext)

	tile, _, err = FromPath([]string{"1", "0", "1.grid.json"}, TMS)
	require.NoError(t, err)
	assert.Equal(t, maptile.New(0, 0, 1), tile)
}

func TestFromPathErrors(t *testing.T) {
	cases := []struct {
		name   string
		parts  []string
		scheme Scheme
	}{
		{"too shallow", []string{"1", "0.png"}, XYZ},
		{"too deep", []string{"1", "0", "0", "0.png"}, TMS},
		{"wms depth", []string{"01", "000", "000", "000", "000", "000.png"}, WMS},
		{"non numeric zoom", []string{"a", "0", "0.png"}, XYZ},
		{"non numeric column", []string{"1", "x", "0.png"}, XYZ},
		{"negative row", []string{"1", "0", "-1.png"}, XYZ},
		{"no extension", []string{"1", "0", "0"}, XYZ},
		{"out of pyramid", []string{"1", "2", "0.png"}, XYZ},
		{"zoom too large", []string{"31", "0", "0.png"}, XYZ},
		{"short wms group", []string{"01", "000", "00", "000", "000", "000", "000.png"}, WMS},
		{"wms group letters", []string{"01", "000", "0a0", "000", "000", "000", "000.png"}, WMS},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := FromPath(c.parts, c.scheme)
			require.Error(t, err)
			assert.True(t, PathFormatError.Has(err), err.Error())
		})
	}
}

func TestWMSSkipsPyramidBound(t *testing.T) {
	tile, _, err := FromPath([]string{"00", "000", "000", "005", "000", "000", "007.png"}, WMS)
	require.NoError(t, err)
	assert.Equal(t, maptile.New(5, 7, 0), tile)
	assert.False(t, Valid(tile))
}

func TestParse(t *testing.T) {
	s, err := ParseScheme("TMS")
	require.NoError(t, err)
	assert.Equal(t, TMS, s)
	_, err = ParseScheme("ags")
	assert.True(t, Error.Has(err))

	f, err := ParseFormat("jpeg")
	require.NoError(t, err)
	assert.Equal(t, JPG, f)
	assert.True(t, f.MatchExt("JPEG"))
	assert.False(t, PNG.MatchExt("jpg"))
	_, err = ParseFormat("tiff")
	assert.True(t, Error.Has(err))
}
