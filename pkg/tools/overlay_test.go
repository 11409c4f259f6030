package tools

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/vtdecode/pkg/core"
)

// Null island lands on the south-east corner of 1/0/0; the second point
// is in another quadrant and gets clipped.
const cutCollection = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":7,"geometry":{"type":"Point","coordinates":[0,0]},"properties":{"name":"origin"}},
	{"type":"Feature","geometry":{"type":"Point","coordinates":[90,-45]},"properties":{"name":"far"}}
]}`

func TestCutGeoJSON(t *testing.T) {
	f := newFixture(t)

	result, err := f.registry.HandleCutGeoJSON(context.Background(), callRequest("cut_geojson", map[string]interface{}{
		"z": 1, "x": 0, "y": 0,
		"geojson": cutCollection,
		"layer":   "places",
	}))
	require.NoError(t, err)
	AssertSuccessResult(t, result, "cut_geojson failed")

	var out FeaturesResult
	require.NoError(t, ParseResultJSON(result, &out))
	assert.Equal(t, "1/0/0", out.Tile)
	assert.Equal(t, "places", out.Layer)
	assert.Equal(t, uint32(4096), out.Extent)
	assert.Equal(t, 1, out.Total)
	require.Len(t, out.Features.Features, 1)

	feature := out.Features.Features[0]
	assert.Equal(t, orb.Point{4096, 4096}, feature.Geometry)
	assert.Equal(t, "origin", feature.Properties["name"])
	assert.EqualValues(t, 7, feature.ID)

	// No request reached the tile server.
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestCutGeoJSONErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code core.ErrorCode
	}{
		{name: "missing tile", args: map[string]interface{}{"geojson": cutCollection}, code: core.ErrMissingParameter},
		{name: "empty geojson", args: map[string]interface{}{"z": 1, "x": 0, "y": 0}, code: core.ErrEmptyParameter},
		{name: "not geojson", args: map[string]interface{}{"z": 1, "x": 0, "y": 0, "geojson": "{"}, code: core.ErrInvalidParameter},
		{name: "bad tile", args: map[string]interface{}{"z": 1, "x": 2, "y": 0, "geojson": cutCollection}, code: core.ErrInvalidTileIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.registry.HandleCutGeoJSON(context.Background(), callRequest("cut_geojson", tt.args))
			require.NoError(t, err)
			AssertErrorCode(t, result, tt.code)
		})
	}
}

func TestAnnotations(t *testing.T) {
	f := newFixture(t)
	call := func(args map[string]interface{}) *FeaturesResult {
		t.Helper()
		result, err := f.registry.HandleAnnotations(context.Background(), callRequest("annotations", args))
		require.NoError(t, err)
		AssertSuccessResult(t, result, "annotations failed")
		var out FeaturesResult
		require.NoError(t, ParseResultJSON(result, &out))
		return &out
	}

	result, err := f.registry.HandleAnnotations(context.Background(), callRequest("annotations", map[string]interface{}{
		"action":     "add",
		"layer":      "marks",
		"geometry":   `{"type":"Point","coordinates":[5,6]}`,
		"attributes": map[string]interface{}{"kind": "marker"},
	}))
	require.NoError(t, err)
	AssertSuccessResult(t, result, "add point failed")
	var added AnnotationAdded
	require.NoError(t, ParseResultJSON(result, &added))
	assert.Equal(t, AnnotationAdded{Layer: "marks", Index: 0, Type: "Point", Features: 1}, added)

	result, err = f.registry.HandleAnnotations(context.Background(), callRequest("annotations", map[string]interface{}{
		"action":   "add",
		"layer":    "marks",
		"geometry": `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`,
	}))
	require.NoError(t, err)
	require.NoError(t, ParseResultJSON(result, &added))
	assert.Equal(t, 1, added.Index)
	assert.Equal(t, "Polygon", added.Type)

	out := call(map[string]interface{}{"action": "list", "layer": "marks"})
	assert.Equal(t, annotationKey, out.Tile)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Features.Features, 2)
	assert.Equal(t, orb.Point{5, 6}, out.Features.Features[0].Geometry)
	assert.Equal(t, "marker", out.Features.Features[0].Properties["kind"])
	assert.Equal(t, "Polygon", out.Features.Features[1].Geometry.GeoJSONType())

	out = call(map[string]interface{}{"action": "list", "layer": "marks", "offset": 1})
	assert.Equal(t, []int{1}, out.Indices)

	result, err = f.registry.HandleAnnotations(context.Background(), callRequest("annotations", map[string]interface{}{
		"action": "clear",
		"layer":  "marks",
	}))
	require.NoError(t, err)
	AssertSuccessResult(t, result, "clear failed")

	out = call(map[string]interface{}{"action": "list", "layer": "marks"})
	assert.Equal(t, 0, out.Total)
}

func TestAnnotationsErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code core.ErrorCode
	}{
		{name: "no layer", args: map[string]interface{}{"action": "list"}, code: core.ErrEmptyParameter},
		{name: "unknown layer", args: map[string]interface{}{"action": "list", "layer": "nothing"}, code: core.ErrLayerNotFound},
		{name: "no geometry", args: map[string]interface{}{"action": "add", "layer": "marks"}, code: core.ErrMissingParameter},
		{name: "bad geometry", args: map[string]interface{}{"action": "add", "layer": "marks", "geometry": "[1,2]"}, code: core.ErrInvalidParameter},
		{name: "collection", args: map[string]interface{}{"action": "add", "layer": "marks", "geometry": `{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[1,1]}]}`}, code: core.ErrInvalidParameter},
		{name: "bad action", args: map[string]interface{}{"action": "move", "layer": "marks"}, code: core.ErrInvalidParameter},
		{name: "non-string attribute", args: map[string]interface{}{"action": "add", "layer": "marks", "attributes": map[string]interface{}{"n": 1}}, code: core.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.registry.HandleAnnotations(context.Background(), callRequest("annotations", tt.args))
			require.NoError(t, err)
			AssertErrorCode(t, result, tt.code)
		})
	}
}
