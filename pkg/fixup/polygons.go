// Package fixup repairs polygon rings whose winding and nesting were not
// guaranteed by the encoder.
package fixup

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

type ring struct {
	coords tile.GeometryCoordinates
	orb    orb.Ring
	area   float64
	parent *ring
	depth  int
}

// Polygons rebuilds the rings of a polygon so that winding tells
// exteriors from holes. Rings are closed, degenerate rings are dropped
// and each ring is nested under the smallest ring containing it. Rings
// at even depth are exteriors with positive signed area, rings at odd
// depth are holes wound the other way. Each exterior is followed by its
// holes; exteriors keep their input order.
//
// Geometry of any other type is returned as is.
func Polygons(g tile.GeometryCollection, t tile.FeatureType) tile.GeometryCollection {
	if t != tile.Polygon {
		return g
	}

	var rings []*ring
	for _, c := range g {
		c = closed(c)
		if len(c) < 4 {
			continue
		}
		r := toOrb(c)
		area := planar.Area(r)
		if area == 0 {
			continue
		}
		rings = append(rings, &ring{coords: c, orb: r, area: area})
	}

	bySize := append([]*ring(nil), rings...)
	sort.SliceStable(bySize, func(i, j int) bool { return bySize[i].area > bySize[j].area })
	for i, r := range bySize {
		for j := i - 1; j >= 0; j-- {
			if planar.RingContains(bySize[j].orb, r.orb[0]) {
				r.parent = bySize[j]
				r.depth = bySize[j].depth + 1
				break
			}
		}
	}

	for _, r := range rings {
		want := orb.CCW
		if r.depth%2 == 1 {
			want = orb.CW
		}
		if r.orb.Orientation() != want {
			reverse(r.coords)
		}
	}

	out := make(tile.GeometryCollection, 0, len(rings))
	for _, ext := range rings {
		if ext.depth%2 == 1 {
			continue
		}
		out = append(out, ext.coords)
		for _, hole := range rings {
			if hole.parent == ext && hole.depth%2 == 1 {
				out = append(out, hole.coords)
			}
		}
	}
	return out
}

// closed returns a copy of c whose last point equals its first.
func closed(c tile.GeometryCoordinates) tile.GeometryCoordinates {
	out := make(tile.GeometryCoordinates, len(c), len(c)+1)
	copy(out, c)
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

func toOrb(c tile.GeometryCoordinates) orb.Ring {
	r := make(orb.Ring, len(c))
	for i, p := range c {
		r[i] = orb.Point{float64(p.X), float64(p.Y)}
	}
	return r
}

func reverse(c tile.GeometryCoordinates) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}
