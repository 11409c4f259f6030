package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// DefaultTileURL is the tile template used when none is configured.
	DefaultTileURL = "https://tiles.openfreemap.org/planet/{z}/{x}/{y}.pbf"

	// MaxZoom is the deepest zoom accepted for tile requests.
	MaxZoom = 24
)

// ValidateTileURL checks that a tile URL template names all three
// tile coordinates.
func ValidateTileURL(template string) error {
	if !strings.Contains(template, "{z}") || !strings.Contains(template, "{x}") {
		return NewValidationError(ErrInvalidParameter,
			fmt.Sprintf("tile URL template %q must contain {z}, {x} and {y}", template))
	}
	if !strings.Contains(template, "{y}") && !strings.Contains(template, "{-y}") {
		return NewValidationError(ErrInvalidParameter,
			fmt.Sprintf("tile URL template %q must contain {y} or {-y}", template))
	}
	return nil
}

// TileURL expands a template for one tile. {-y} selects the TMS row.
func TileURL(template string, id maptile.Tile) string {
	tms := (uint32(1) << id.Z) - 1 - id.Y
	r := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(id.Z), 10),
		"{x}", strconv.FormatUint(uint64(id.X), 10),
		"{y}", strconv.FormatUint(uint64(id.Y), 10),
		"{-y}", strconv.FormatUint(uint64(tms), 10),
	)
	return r.Replace(template)
}

// ValidateTile checks a z/x/y triple and returns the tile it names.
func ValidateTile(z, x, y int) (maptile.Tile, error) {
	if z < 0 || z > MaxZoom {
		return maptile.Tile{}, NewValidationError(ErrInvalidZoom,
			fmt.Sprintf("zoom must be between 0 and %d, got %d", MaxZoom, z))
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return maptile.Tile{}, NewValidationError(ErrInvalidTileIndex,
			fmt.Sprintf("tile %d/%d/%d is outside the 0..%d range for zoom %d", z, x, y, n-1, z))
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// LatLonToTile returns the tile containing a WGS84 position.
func LatLonToTile(lat, lon float64, zoom int) maptile.Tile {
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	return maptile.At(orb.Point{lon, lat}, maptile.Zoom(zoom))
}

// TileInfo contains information about a map tile
type TileInfo struct {
	Zoom      int     `json:"zoom"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
	NorthLat  float64 `json:"north_lat"`
	SouthLat  float64 `json:"south_lat"`
	EastLon   float64 `json:"east_lon"`
	WestLon   float64 `json:"west_lon"`
	TileURL   string  `json:"tile_url,omitempty"`
	// Approximate ground size of one canonical tile unit.
	UnitSize float64 `json:"unit_size_meters"`
}

// GetTileInfo returns the geographic footprint of a tile. extent is the
// canonical extent its geometry is scaled to.
func GetTileInfo(id maptile.Tile, template string, extent uint32) TileInfo {
	b := id.Bound()
	center := b.Center()

	// Mercator ground width of the tile at its center latitude.
	width := 2 * math.Pi * 6378137 * math.Cos(center.Lat()*math.Pi/180) / math.Pow(2, float64(id.Z))
	unit := width
	if extent > 0 {
		unit = width / float64(extent)
	}

	info := TileInfo{
		Zoom:      int(id.Z),
		X:         int(id.X),
		Y:         int(id.Y),
		CenterLat: center.Lat(),
		CenterLon: center.Lon(),
		NorthLat:  b.Top(),
		SouthLat:  b.Bottom(),
		EastLon:   b.Right(),
		WestLon:   b.Left(),
		UnitSize:  unit,
	}
	if template != "" {
		info.TileURL = TileURL(template, id)
	}
	return info
}
