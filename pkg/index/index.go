// Package index builds an R-tree over the features of a decoded layer so
// they can be looked up by area in tile coordinates.
package index

import (
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// pad keeps rectangles of points and axis-aligned lines non-degenerate.
// Coordinates are integral, so half a unit never joins two features.
const pad = 0.5

type entry struct {
	index int
	bound orb.Bound
}

// Bounds implements rtreego.Spatial.
func (e *entry) Bounds() rtreego.Rect {
	return rect(e.bound)
}

func rect(b orb.Bound) rtreego.Rect {
	point := rtreego.Point{b.Min[0] - pad, b.Min[1] - pad}
	lengths := []float64{
		b.Max[0] - b.Min[0] + 2*pad,
		b.Max[1] - b.Min[1] + 2*pad,
	}
	// lengths are always positive, so NewRect cannot fail.
	r, _ := rtreego.NewRect(point, lengths)
	return r
}

// FeatureIndex answers bounding box queries over one layer.
type FeatureIndex struct {
	tree    *rtreego.Rtree
	entries []*entry
	bound   orb.Bound
	empty   int
}

// Build decodes the geometry of every feature in l and indexes its
// bounding box. Features without coordinates are counted but not
// indexed. The first decode failure aborts the build.
func Build(l tile.Layer) (*FeatureIndex, error) {
	// 2D, min=25 children, max=50 children
	fi := &FeatureIndex{tree: rtreego.NewTree(2, 25, 50)}

	for i := 0; i < l.FeatureCount(); i++ {
		f, err := l.Feature(i)
		if err != nil {
			return nil, fmt.Errorf("index feature %d of %s: %w", i, l.Name(), err)
		}
		g, err := f.Geometries()
		if err != nil {
			return nil, fmt.Errorf("index feature %d of %s: %w", i, l.Name(), err)
		}
		if !hasCoordinates(g) {
			fi.empty++
			continue
		}

		e := &entry{index: i, bound: tile.Bound(g)}
		if len(fi.entries) == 0 {
			fi.bound = e.bound
		} else {
			fi.bound = fi.bound.Union(e.bound)
		}
		fi.entries = append(fi.entries, e)
		fi.tree.Insert(e)
	}

	return fi, nil
}

func hasCoordinates(g tile.GeometryCollection) bool {
	for _, ring := range g {
		if len(ring) > 0 {
			return true
		}
	}
	return false
}

// Len returns the number of indexed features.
func (fi *FeatureIndex) Len() int { return len(fi.entries) }

// Empty returns the number of features skipped for having no geometry.
func (fi *FeatureIndex) Empty() int { return fi.empty }

// Bound returns the union of all indexed bounding boxes.
func (fi *FeatureIndex) Bound() orb.Bound { return fi.bound }

// Query returns the indices of features whose bounding box intersects b,
// in ascending order.
func (fi *FeatureIndex) Query(b orb.Bound) []int {
	if len(fi.entries) == 0 {
		return nil
	}

	var out []int
	for _, s := range fi.tree.SearchIntersect(rect(b)) {
		e := s.(*entry)
		// The tree works on padded rectangles; check the exact boxes.
		if e.bound.Intersects(b) {
			out = append(out, e.index)
		}
	}
	sort.Ints(out)
	return out
}

// Nearest returns up to k feature indices ordered by the distance from p
// to their bounding box.
func (fi *FeatureIndex) Nearest(p orb.Point, k int) []int {
	if len(fi.entries) == 0 || k <= 0 {
		return nil
	}

	found := fi.tree.NearestNeighbors(k, rtreego.Point{p[0], p[1]})
	out := make([]int, 0, len(found))
	for _, s := range found {
		if s == nil {
			continue
		}
		out = append(out, s.(*entry).index)
	}
	return out
}
