package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb"

	"github.com/NERVsystems/vtdecode/pkg/coords"
	"github.com/NERVsystems/vtdecode/pkg/core"
)

// TileInfoInput is the input of tile_info.
// Position, when set, replaces Latitude and Longitude.
type TileInfoInput struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Position  string   `json:"position,omitempty"`
	Zoom      int      `json:"zoom"`
}

// TileInfoResult pairs a tile footprint with its cache state.
type TileInfoResult struct {
	core.TileInfo
	URI    string `json:"uri"`
	Cached bool   `json:"cached"`
	Format string `json:"format"`
	MGRS   string `json:"mgrs,omitempty"`
}

// TileInfoTool returns the tile_info tool definition.
func (r *Registry) TileInfoTool() mcp.Tool {
	return r.factory.CreateBasicTool("tile_info",
		"Find the tile covering a position and describe its footprint",
		mcp.WithNumber("latitude",
			mcp.Description("Latitude in decimal degrees"),
		),
		mcp.WithNumber("longitude",
			mcp.Description("Longitude in decimal degrees"),
		),
		mcp.WithString("position",
			mcp.Description("Position as MGRS, UTM, degrees minutes seconds or \"lat, lon\"; replaces latitude and longitude"),
		),
		mcp.WithNumber("zoom",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Zoom level (0-%d)", core.MaxZoom)),
		),
	)
}

// HandleTileInfo implements tile_info.
func (r *Registry) HandleTileInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput[TileInfoInput](r.logger, "tile_info",
		func(ctx context.Context, input TileInfoInput, logger *slog.Logger) (interface{}, error) {
			pos, err := tileInfoPosition(input)
			if err != nil {
				return nil, err
			}
			if input.Zoom < 0 || input.Zoom > core.MaxZoom {
				return nil, core.NewValidationError(core.ErrInvalidZoom,
					fmt.Sprintf("zoom must be between 0 and %d, got %d", core.MaxZoom, input.Zoom))
			}

			id := core.LatLonToTile(pos.Lat(), pos.Lon(), input.Zoom)
			result := TileInfoResult{
				TileInfo: core.GetTileInfo(id, r.src.Template(), r.src.CanonicalExtent()),
				URI:      tileURI(id),
				Cached:   r.src.Cached(id),
				Format:   pos.Format.String(),
			}
			// MGRS is undefined near the poles.
			if grid, err := coords.ToMGRS(pos.Lat(), pos.Lon(), 5); err == nil {
				result.MGRS = grid
			} else {
				logger.Debug("no MGRS reference", "lat", pos.Lat(), "lon", pos.Lon(), "error", err)
			}
			return result, nil
		})(ctx, req)
}

// tileInfoPosition reads the position from either form of input.
func tileInfoPosition(input TileInfoInput) (*coords.Position, error) {
	if input.Position != "" {
		pos, err := coords.Parse(input.Position)
		if err != nil {
			return nil, core.NewValidationError(core.ErrInvalidParameter, err.Error()).
				WithSuggestions("47QME8598697460", "18T 234567 4567890", `19°51'22"N 99°48'59"E`, "19.856, 99.816")
		}
		return pos, nil
	}
	if input.Latitude == nil || input.Longitude == nil {
		return nil, core.NewValidationError(core.ErrMissingParameter, "latitude and longitude are required unless position is given")
	}
	if err := ValidateCoordinates(*input.Latitude, *input.Longitude); err != nil {
		return nil, err
	}
	return &coords.Position{
		Point:  orb.Point{*input.Longitude, *input.Latitude},
		Format: coords.FormatDecimal,
	}, nil
}

// ValidateCoordinates validates latitude and longitude are within valid ranges
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("latitude must be between -90 and 90, got %f", lat))
	}
	if lon < -180 || lon > 180 {
		return core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("longitude must be between -180 and 180, got %f", lon))
	}
	return nil
}
