// Package tile defines the feature model shared by every tile source:
// wire-decoded vector tiles, in-memory annotations and GeoJSON tiles.
//
// A consumer only ever sees Data, Layer and Feature, so it can render
// features without knowing where they came from.
package tile

// FeatureType is the declared geometry type of a feature.
type FeatureType uint8

const (
	Unknown    FeatureType = 0
	Point      FeatureType = 1
	LineString FeatureType = 2
	Polygon    FeatureType = 3
)

// String returns the feature type name.
func (t FeatureType) String() string {
	switch t {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// FeatureTypeFromCode maps a wire code to a FeatureType. Any code
// outside 1..3 is Unknown.
func FeatureTypeFromCode(code uint64) FeatureType {
	switch code {
	case 1, 2, 3:
		return FeatureType(code)
	default:
		return Unknown
	}
}

// Coordinate is a point in canonical tile coordinates.
type Coordinate struct {
	X, Y int16
}

// GeometryCoordinates is one ring or line.
type GeometryCoordinates []Coordinate

// GeometryCollection is the ordered list of rings or lines of a feature.
type GeometryCollection []GeometryCoordinates

// Clone returns a deep copy of g.
func (g GeometryCollection) Clone() GeometryCollection {
	if g == nil {
		return nil
	}
	out := make(GeometryCollection, len(g))
	for i, ring := range g {
		out[i] = append(GeometryCoordinates(nil), ring...)
	}
	return out
}

// Feature is a single attributed geometry.
type Feature interface {
	// Type returns the declared geometry type.
	Type() FeatureType

	// Value returns the attribute stored under key. found is false
	// when the feature has no such attribute.
	Value(key string) (v Value, found bool, err error)

	// Properties returns every attribute of the feature.
	Properties() (map[string]Value, error)

	// ID returns the feature id, if one was encoded.
	ID() (id uint64, ok bool)

	// Geometries returns the feature geometry in canonical tile
	// coordinates. Each call returns a fresh collection.
	Geometries() (GeometryCollection, error)
}

// Layer is a named, indexed set of features.
type Layer interface {
	Name() string
	FeatureCount() int
	Feature(i int) (Feature, error)
}

// Data is the decoded content of one tile.
type Data interface {
	// Layer looks up a layer by name. found is false when the tile
	// has no such layer.
	Layer(name string) (l Layer, found bool, err error)

	// LayerNames lists the layers of the tile.
	LayerNames() ([]string, error)
}
