package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb/maptile"

	"github.com/NERVsystems/vtdecode/pkg/core"
)

// CachedTile names one decoded tile held by the source.
type CachedTile struct {
	URI  string `json:"uri"`
	Zoom int    `json:"zoom"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// TileCacheTool returns a tool definition for managing cached tiles
func (r *Registry) TileCacheTool() mcp.Tool {
	return mcp.NewTool("tile_cache",
		mcp.WithDescription("Inspect, fill or evict the tiles held by the tile source"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Action to perform: 'stats', 'list', 'prefetch', 'evict' or 'purge'"),
		),
		mcp.WithNumber("z",
			mcp.Description("Tile zoom level (required for 'prefetch' and 'evict')"),
		),
		mcp.WithNumber("x",
			mcp.Description("Tile column (required for 'prefetch' and 'evict')"),
		),
		mcp.WithNumber("y",
			mcp.Description("Tile row (required for 'prefetch' and 'evict')"),
		),
		mcp.WithNumber("radius",
			mcp.Description("For 'prefetch', also load the tiles up to this many steps away"),
			mcp.DefaultNumber(0),
		),
	)
}

// HandleTileCache implements tile cache management functionality
func (r *Registry) HandleTileCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "tile_cache")

	action := mcp.ParseString(req, "action", "")
	if action == "" {
		return core.NewError(core.ErrMissingParameter, "Action parameter is required").ToMCPResult(), nil
	}

	var result interface{}
	switch action {
	case "stats":
		result = r.src.Stats()
	case "list":
		result = r.listCachedTiles()
	case "prefetch":
		id, err := tileParam(req)
		if err != nil {
			return toolError(err).ToMCPResult(), nil
		}
		ids, err := neighbours(id, int(mcp.ParseFloat64(req, "radius", 0)))
		if err != nil {
			return toolError(err).ToMCPResult(), nil
		}
		if err := r.src.Prefetch(ctx, ids); err != nil {
			logger.Warn("prefetch failed", "tile", tileName(id), "tiles", len(ids), "error", err)
			return toolError(err).ToMCPResult(), nil
		}
		logger.Info("prefetched tiles", "tile", tileName(id), "tiles", len(ids))
		result = map[string]interface{}{"prefetched": len(ids), "stats": r.src.Stats()}
	case "evict":
		id, err := tileParam(req)
		if err != nil {
			return toolError(err).ToMCPResult(), nil
		}
		evicted := r.src.Evict(id)
		logger.Info("evicted tile", "tile", tileName(id), "held", evicted)
		result = map[string]interface{}{"tile": tileName(id), "evicted": evicted}
	case "purge":
		r.src.Purge()
		r.indexes.Purge()
		logger.Info("purged tile caches")
		result = map[string]interface{}{"purged": true}
	default:
		return core.NewError(core.ErrInvalidInput, fmt.Sprintf("Unknown action: %s. Use 'stats', 'list', 'prefetch', 'evict' or 'purge'", action)).ToMCPResult(), nil
	}

	jsonResponse, err := json.Marshal(result)
	if err != nil {
		logger.Error("failed to marshal tile cache result", "error", err)
		return core.NewError(core.ErrInternalError, "Failed to serialize tile cache result").ToMCPResult(), nil
	}
	return mcp.NewToolResultText(string(jsonResponse)), nil
}

func (r *Registry) listCachedTiles() interface{} {
	ids := r.src.CachedTiles()
	tiles := make([]CachedTile, 0, len(ids))
	for _, id := range ids {
		tiles = append(tiles, CachedTile{
			URI:  tileURI(id),
			Zoom: int(id.Z),
			X:    int(id.X),
			Y:    int(id.Y),
		})
	}
	return struct {
		CachedTiles []CachedTile `json:"cached_tiles"`
		Count       int          `json:"count"`
	}{
		CachedTiles: tiles,
		Count:       len(tiles),
	}
}

// tileParam reads a z/x/y triple from the request.
func tileParam(req mcp.CallToolRequest) (maptile.Tile, error) {
	z := int(mcp.ParseFloat64(req, "z", -1))
	x := int(mcp.ParseFloat64(req, "x", -1))
	y := int(mcp.ParseFloat64(req, "y", -1))
	if z < 0 || x < 0 || y < 0 {
		return maptile.Tile{}, core.NewError(core.ErrMissingParameter, "z, x and y parameters are required for this action")
	}
	return core.ValidateTile(z, x, y)
}

// neighbours returns id and the tiles within radius steps of it at the
// same zoom, clipped to the world.
func neighbours(id maptile.Tile, radius int) ([]maptile.Tile, error) {
	if radius < 0 {
		return nil, core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("radius must not be negative, got %d", radius))
	}
	if side := 2*radius + 1; side*side > MaxPrefetchTiles {
		return nil, core.NewValidationError(core.ErrInvalidParameter,
			fmt.Sprintf("radius %d covers more than %d tiles", radius, MaxPrefetchTiles))
	}

	n := 1 << id.Z
	var ids []maptile.Tile
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			x, y := int(id.X)+dx, int(id.Y)+dy
			if x < 0 || x >= n || y < 0 || y >= n {
				continue
			}
			ids = append(ids, maptile.New(uint32(x), uint32(y), id.Z))
		}
	}
	return ids, nil
}

func tileName(id maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", id.Z, id.X, id.Y)
}

func tileURI(id maptile.Tile) string {
	return fmt.Sprintf("vt://tile/%d/%d/%d", id.Z, id.X, id.Y)
}
