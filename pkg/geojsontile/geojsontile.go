// Package geojsontile cuts GeoJSON feature collections into a single tile
// and exposes the result through the interfaces of package tile.
package geojsontile

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Half the circumference of the spherical mercator world, in meters.
const mercatorMax = 20037508.342789244

// Options controls how geometry is placed in the tile.
type Options struct {
	// Extent is the coordinate span of the tile.
	Extent uint32

	// Buffer is how far past the tile edge, in tile units, geometry is
	// kept before clipping.
	Buffer float64
}

// DefaultOptions returns options matching the decoder's canonical extent.
func DefaultOptions() Options {
	return Options{
		Extent: 8192,
		Buffer: 128,
	}
}

// Tile is GeoJSON data clipped to one tile.
type Tile struct {
	id     maptile.Tile
	layers map[string]*Layer
}

var _ tile.Data = (*Tile)(nil)

// New projects every feature collection into tile id, clips it and
// keeps the features that remain. Geometry collections are skipped.
func New(id maptile.Tile, collections map[string]*geojson.FeatureCollection, opts Options) *Tile {
	if opts.Extent == 0 {
		opts.Extent = DefaultOptions().Extent
	}
	toTile := projection(id, float64(opts.Extent))
	b := float64(opts.Extent)
	bound := orb.Bound{
		Min: orb.Point{-opts.Buffer, -opts.Buffer},
		Max: orb.Point{b + opts.Buffer, b + opts.Buffer},
	}

	t := &Tile{id: id, layers: make(map[string]*Layer, len(collections))}
	for name, fc := range collections {
		l := &Layer{name: name}
		if fc != nil {
			for _, gf := range fc.Features {
				if f := convertFeature(gf, toTile, bound); f != nil {
					l.features = append(l.features, f)
				}
			}
		}
		t.layers[name] = l
	}
	return t
}

// TileID returns the tile the data was cut for.
func (t *Tile) TileID() maptile.Tile { return t.id }

func (t *Tile) Layer(name string) (tile.Layer, bool, error) {
	l, ok := t.layers[name]
	if !ok {
		return nil, false, nil
	}
	return l, true, nil
}

// LayerNames returns the layer names in sorted order.
func (t *Tile) LayerNames() ([]string, error) {
	names := make([]string, 0, len(t.layers))
	for name := range t.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// projection maps WGS84 lon/lat to coordinates local to tile id.
func projection(id maptile.Tile, extent float64) orb.Projection {
	n := float64(uint64(1) << uint(id.Z))
	return func(p orb.Point) orb.Point {
		m := project.WGS84.ToMercator(p)
		x := (m[0] + mercatorMax) / (2 * mercatorMax) * n
		y := (mercatorMax - m[1]) / (2 * mercatorMax) * n
		return orb.Point{
			(x - float64(id.X)) * extent,
			(y - float64(id.Y)) * extent,
		}
	}
}

func convertFeature(gf *geojson.Feature, toTile orb.Projection, bound orb.Bound) *Feature {
	if gf == nil || gf.Geometry == nil {
		return nil
	}
	g := project.Geometry(orb.Clone(gf.Geometry), toTile)
	g = clip.Geometry(bound, g)
	if g == nil {
		return nil
	}

	typ, geom := collect(g)
	if typ == tile.Unknown || len(geom) == 0 {
		return nil
	}

	f := &Feature{typ: typ, geometry: geom, props: convertProperties(gf.Properties)}
	f.id, f.hasID = convertID(gf.ID)
	return f
}

// Geometry converts g, already in tile coordinates, to the rings of a
// tile feature. Geometry collections report Unknown.
func Geometry(g orb.Geometry) (tile.FeatureType, tile.GeometryCollection) {
	return collect(g)
}

// collect flattens g into rings. Each point of a multipoint gets its own
// ring, as a multi-point MoveTo does on the wire. Polygon exteriors are
// wound with positive signed area and holes the other way.
func collect(g orb.Geometry) (tile.FeatureType, tile.GeometryCollection) {
	switch g := g.(type) {
	case orb.Point:
		return tile.Point, tile.GeometryCollection{{coordinate(g)}}
	case orb.MultiPoint:
		out := make(tile.GeometryCollection, 0, len(g))
		for _, p := range g {
			out = append(out, tile.GeometryCoordinates{coordinate(p)})
		}
		return tile.Point, out
	case orb.LineString:
		return tile.LineString, tile.GeometryCollection{coordinates(g)}
	case orb.MultiLineString:
		out := make(tile.GeometryCollection, 0, len(g))
		for _, ls := range g {
			if len(ls) > 0 {
				out = append(out, coordinates(ls))
			}
		}
		return tile.LineString, out
	case orb.Ring:
		return tile.Polygon, polygonRings(orb.Polygon{g})
	case orb.Bound:
		return tile.Polygon, polygonRings(g.ToPolygon())
	case orb.Polygon:
		return tile.Polygon, polygonRings(g)
	case orb.MultiPolygon:
		var out tile.GeometryCollection
		for _, p := range g {
			out = append(out, polygonRings(p)...)
		}
		return tile.Polygon, out
	default:
		return tile.Unknown, nil
	}
}

func polygonRings(p orb.Polygon) tile.GeometryCollection {
	out := make(tile.GeometryCollection, 0, len(p))
	for i, r := range p {
		if len(r) == 0 {
			continue
		}
		want := orb.CCW
		if i > 0 {
			want = orb.CW
		}
		if r.Orientation() == -want {
			r.Reverse()
		}
		out = append(out, coordinates(orb.LineString(r)))
	}
	return out
}

func coordinates(ls orb.LineString) tile.GeometryCoordinates {
	out := make(tile.GeometryCoordinates, len(ls))
	for i, p := range ls {
		out[i] = coordinate(p)
	}
	return out
}

func coordinate(p orb.Point) tile.Coordinate {
	return tile.Coordinate{X: clamp(p[0]), Y: clamp(p[1])}
}

func clamp(v float64) int16 {
	r := math.Round(v)
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	}
	return int16(r)
}

func convertProperties(props geojson.Properties) map[string]tile.Value {
	out := make(map[string]tile.Value, len(props))
	for k, v := range props {
		out[k] = convertValue(v)
	}
	return out
}

func convertValue(v interface{}) tile.Value {
	switch v := v.(type) {
	case bool:
		return tile.BoolValue(v)
	case string:
		return tile.StringValue(v)
	case int:
		return tile.IntValue(int64(v))
	case int64:
		return tile.IntValue(v)
	case uint64:
		return tile.UintValue(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return tile.IntValue(int64(v))
		}
		return tile.FloatValue(v)
	case nil:
		return tile.BoolValue(false)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return tile.StringValue("")
		}
		return tile.StringValue(string(b))
	}
}

func convertID(id interface{}) (uint64, bool) {
	switch id := id.(type) {
	case float64:
		if id >= 0 && id == math.Trunc(id) && id < 1<<53 {
			return uint64(id), true
		}
	case int:
		if id >= 0 {
			return uint64(id), true
		}
	case int64:
		if id >= 0 {
			return uint64(id), true
		}
	case uint64:
		return id, true
	}
	return 0, false
}

// IndexError reports a feature index outside a layer.
type IndexError struct {
	Layer string
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("geojson layer %q: feature %d out of range [0,%d)", e.Layer, e.Index, e.Count)
}

// Layer is one clipped feature collection.
type Layer struct {
	name     string
	features []*Feature
}

var _ tile.Layer = (*Layer)(nil)

func (l *Layer) Name() string      { return l.name }
func (l *Layer) FeatureCount() int { return len(l.features) }

func (l *Layer) Feature(i int) (tile.Feature, error) {
	if i < 0 || i >= len(l.features) {
		return nil, &IndexError{Layer: l.name, Index: i, Count: len(l.features)}
	}
	return l.features[i], nil
}

// Feature is one clipped GeoJSON feature in tile coordinates.
type Feature struct {
	typ      tile.FeatureType
	geometry tile.GeometryCollection
	props    map[string]tile.Value
	id       uint64
	hasID    bool
}

var _ tile.Feature = (*Feature)(nil)

func (f *Feature) Type() tile.FeatureType { return f.typ }
func (f *Feature) ID() (uint64, bool)     { return f.id, f.hasID }

func (f *Feature) Value(key string) (tile.Value, bool, error) {
	v, ok := f.props[key]
	return v, ok, nil
}

func (f *Feature) Properties() (map[string]tile.Value, error) {
	out := make(map[string]tile.Value, len(f.props))
	for k, v := range f.props {
		out[k] = v
	}
	return out, nil
}

func (f *Feature) Geometries() (tile.GeometryCollection, error) {
	return f.geometry.Clone(), nil
}
