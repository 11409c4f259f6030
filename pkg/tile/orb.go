package tile

import (
	"github.com/paulmach/orb"
)

// ToOrb converts a geometry collection into an orb geometry in tile
// coordinates. Points become a Point or MultiPoint, lines a LineString
// or MultiLineString. Polygon rings are grouped by orientation: a ring
// with positive signed area starts a new polygon, any other ring is a
// hole of the current polygon.
func ToOrb(g GeometryCollection, t FeatureType) orb.Geometry {
	switch t {
	case Point:
		var mp orb.MultiPoint
		for _, ring := range g {
			for _, c := range ring {
				mp = append(mp, c.orb())
			}
		}
		if len(mp) == 1 {
			return mp[0]
		}
		return mp
	case Polygon:
		var mp orb.MultiPolygon
		for _, ring := range g {
			if len(ring) == 0 {
				continue
			}
			r := orb.Ring(toLineString(ring))
			if len(mp) == 0 || r.Orientation() == orb.CCW {
				mp = append(mp, orb.Polygon{r})
				continue
			}
			last := len(mp) - 1
			mp[last] = append(mp[last], r)
		}
		if len(mp) == 1 {
			return mp[0]
		}
		return mp
	default:
		var mls orb.MultiLineString
		for _, ring := range g {
			if len(ring) == 0 {
				continue
			}
			mls = append(mls, toLineString(ring))
		}
		if len(mls) == 1 {
			return mls[0]
		}
		return mls
	}
}

// Bound returns the bounding box of every coordinate in g.
func Bound(g GeometryCollection) orb.Bound {
	var b orb.Bound
	first := true
	for _, ring := range g {
		for _, c := range ring {
			if first {
				b = orb.Bound{Min: c.orb(), Max: c.orb()}
				first = false
				continue
			}
			b = b.Extend(c.orb())
		}
	}
	return b
}

func (c Coordinate) orb() orb.Point {
	return orb.Point{float64(c.X), float64(c.Y)}
}

func toLineString(ring GeometryCoordinates) orb.LineString {
	ls := make(orb.LineString, len(ring))
	for i, c := range ring {
		ls[i] = c.orb()
	}
	return ls
}
