package fixup

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

func square(x0, y0, size int16) tile.GeometryCoordinates {
	// positive signed area
	return tile.GeometryCoordinates{
		{X: x0, Y: y0},
		{X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size},
		{X: x0, Y: y0 + size},
		{X: x0, Y: y0},
	}
}

func reversed(c tile.GeometryCoordinates) tile.GeometryCoordinates {
	out := append(tile.GeometryCoordinates(nil), c...)
	reverse(out)
	return out
}

func orientation(c tile.GeometryCoordinates) orb.Orientation {
	return toOrb(c).Orientation()
}

func TestPolygonsNonPolygonUntouched(t *testing.T) {
	g := tile.GeometryCollection{{{X: 0, Y: 0}, {X: 0, Y: 0}}}
	require.Equal(t, g, Polygons(g, tile.LineString))
}

func TestPolygonsDropsDegenerateRings(t *testing.T) {
	g := tile.GeometryCollection{
		{{X: 0, Y: 0}, {X: 0, Y: 0}},
		{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}, {X: 0, Y: 0}},
	}
	require.Empty(t, Polygons(g, tile.Polygon))
}

func TestPolygonsOrientsExteriorAndHole(t *testing.T) {
	outer := reversed(square(0, 0, 100)) // wrong winding for an exterior
	hole := square(10, 10, 10)           // wrong winding for a hole

	out := Polygons(tile.GeometryCollection{hole, outer}, tile.Polygon)
	require.Len(t, out, 2)

	require.Equal(t, orb.CCW, orientation(out[0]))
	require.Equal(t, orb.CW, orientation(out[1]))
	require.Equal(t, tile.Bound(tile.GeometryCollection{out[0]}).Max, orb.Point{100, 100})
}

func TestPolygonsClosesOpenRings(t *testing.T) {
	open := tile.GeometryCoordinates{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	out := Polygons(tile.GeometryCollection{open}, tile.Polygon)
	require.Len(t, out, 1)
	require.Len(t, out[0], 4)
	require.Equal(t, out[0][0], out[0][3])
}

func TestPolygonsNestedIsland(t *testing.T) {
	outer := square(0, 0, 100)
	hole := reversed(square(10, 10, 80))
	island := square(20, 20, 10)
	other := square(200, 200, 10)

	out := Polygons(tile.GeometryCollection{outer, hole, island, other}, tile.Polygon)
	require.Len(t, out, 4)

	// exteriors in input order, each followed by its holes
	require.Equal(t, outer, out[0])
	require.Equal(t, hole, out[1])
	require.Equal(t, island, out[2])
	require.Equal(t, other, out[3])
}

func TestPolygonsDoesNotMutateInput(t *testing.T) {
	outer := reversed(square(0, 0, 10))
	in := tile.GeometryCollection{outer}
	before := in.Clone()

	Polygons(in, tile.Polygon)
	require.Equal(t, before, in)
}
