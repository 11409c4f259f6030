package tools

import (
	"context"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/source"
)

func TestTileCacheActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.registry.HandleTileCache(ctx, callRequest("tile_cache",
		map[string]interface{}{"action": "prefetch", "z": 7.0, "x": 5.0, "y": 6.0}))
	require.NoError(t, err)
	AssertSuccessResult(t, result, "prefetch failed")
	assert.True(t, f.src.Cached(maptile.New(5, 6, 7)))

	result, err = f.registry.HandleTileCache(ctx, callRequest("tile_cache", map[string]interface{}{"action": "list"}))
	require.NoError(t, err)
	var list struct {
		CachedTiles []CachedTile `json:"cached_tiles"`
		Count       int          `json:"count"`
	}
	require.NoError(t, ParseResultJSON(result, &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, CachedTile{URI: "vt://tile/7/5/6", Zoom: 7, X: 5, Y: 6}, list.CachedTiles[0])

	result, err = f.registry.HandleTileCache(ctx, callRequest("tile_cache", map[string]interface{}{"action": "stats"}))
	require.NoError(t, err)
	var stats source.Stats
	require.NoError(t, ParseResultJSON(result, &stats))
	assert.Equal(t, 1, stats.DecodedEntries)
	assert.Equal(t, uint64(1), stats.Fetches)

	result, err = f.registry.HandleTileCache(ctx, callRequest("tile_cache",
		map[string]interface{}{"action": "evict", "z": 7.0, "x": 5.0, "y": 6.0}))
	require.NoError(t, err)
	var evicted struct {
		Tile    string `json:"tile"`
		Evicted bool   `json:"evicted"`
	}
	require.NoError(t, ParseResultJSON(result, &evicted))
	assert.Equal(t, "7/5/6", evicted.Tile)
	assert.True(t, evicted.Evicted)
	assert.False(t, f.src.Cached(maptile.New(5, 6, 7)))

	result, err = f.registry.HandleTileCache(ctx, callRequest("tile_cache", map[string]interface{}{"action": "purge"}))
	require.NoError(t, err)
	AssertSuccessResult(t, result, "purge failed")
	assert.Equal(t, 0, f.src.Stats().RawEntries)
}

func TestTileCachePrefetchRadius(t *testing.T) {
	f := newFixture(t)

	// Every neighbour of 7/5/6 is a 404 on the test server.
	result, err := f.registry.HandleTileCache(context.Background(), callRequest("tile_cache",
		map[string]interface{}{"action": "prefetch", "z": 7.0, "x": 5.0, "y": 6.0, "radius": 1.0}))
	require.NoError(t, err)
	AssertErrorCode(t, result, core.ErrNoResults)
}

func TestTileCacheErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code core.ErrorCode
	}{
		{name: "no action", args: map[string]interface{}{}, code: core.ErrMissingParameter},
		{name: "unknown action", args: map[string]interface{}{"action": "list_all"}, code: core.ErrInvalidInput},
		{name: "evict without tile", args: map[string]interface{}{"action": "evict"}, code: core.ErrMissingParameter},
		{name: "evict bad zoom", args: map[string]interface{}{"action": "evict", "z": 40.0, "x": 0.0, "y": 0.0}, code: core.ErrInvalidZoom},
		{name: "radius too large", args: map[string]interface{}{"action": "prefetch", "z": 7.0, "x": 5.0, "y": 6.0, "radius": 8.0}, code: core.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.registry.HandleTileCache(context.Background(), callRequest("tile_cache", tt.args))
			require.NoError(t, err)
			AssertErrorCode(t, result, tt.code)
		})
	}
}

func TestNeighbours(t *testing.T) {
	tests := []struct {
		name   string
		id     maptile.Tile
		radius int
		want   int
	}{
		{name: "single", id: maptile.New(5, 6, 7), radius: 0, want: 1},
		{name: "interior", id: maptile.New(5, 6, 7), radius: 1, want: 9},
		{name: "corner", id: maptile.New(0, 0, 7), radius: 1, want: 4},
		{name: "world at zoom 0", id: maptile.New(0, 0, 0), radius: 3, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := neighbours(tt.id, tt.radius)
			require.NoError(t, err)
			assert.Len(t, ids, tt.want)
			assert.Contains(t, ids, tt.id)
		})
	}

	_, err := neighbours(maptile.New(0, 0, 1), -1)
	assert.Error(t, err)
}
