package vectortile

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Tiles written by orb's encoder decode to the same geometry and
// attributes.
func TestDecodeOrbEncodedTile(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	road := geojson.NewFeature(orb.LineString{{0, 0}, {10, 0}, {10, 10}})
	road.Properties["name"] = "main"
	fc.Append(road)
	fc.Append(geojson.NewFeature(orb.Point{25, 40}))

	data, err := mvt.Marshal(mvt.Layers{mvt.NewLayer("roads", fc)})
	require.NoError(t, err)

	l := mustLayer(t, New(data, WithCanonicalExtent(mvt.DefaultExtent)), "roads")
	require.Equal(t, 2, l.FeatureCount())
	require.Equal(t, uint32(mvt.DefaultExtent), l.Extent())

	f := mustFeature(t, l, 0)
	require.Equal(t, tile.LineString, f.Type())
	g, err := f.Geometries()
	require.NoError(t, err)
	require.Equal(t, tile.GeometryCollection{{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}}, g)

	v, ok, err := f.Value("name")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, tile.StringValue("main").Equal(v))

	p := mustFeature(t, l, 1)
	require.Equal(t, tile.Point, p.Type())
	g, err = p.Geometries()
	require.NoError(t, err)
	require.Equal(t, tile.GeometryCollection{{{X: 25, Y: 40}}}, g)
}

// Fixture tiles are readable by orb's decoder.
func TestFixturesReadableByOrb(t *testing.T) {
	layers, err := mvt.Unmarshal(encodeTile(roadsLayer()))
	require.NoError(t, err)
	require.Len(t, layers, 1)
	require.Equal(t, "roads", layers[0].Name)
	require.Len(t, layers[0].Features, 2)

	first := layers[0].Features[0]
	require.Equal(t, orb.LineString{{0, 0}, {100, 50}}, first.Geometry)
	require.Equal(t, "primary", first.Properties["class"])
}
