package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/index"
	"github.com/NERVsystems/vtdecode/pkg/tile"
	"github.com/NERVsystems/vtdecode/pkg/vectortile"
)

type indexKey struct {
	id    maptile.Tile
	layer string
}

// indexEntry remembers which decoded tile an index was built from, so a
// refetched tile gets a fresh one.
type indexEntry struct {
	tile *vectortile.Tile
	idx  *index.FeatureIndex
}

// FeaturesResult is the result of the feature tools. Features holds
// geometry in tile coordinates spanning 0..Extent; Indices[i] is the
// position of Features.Features[i] in the layer. LayerExtent is the
// layer's encoded extent when the source has one.
type FeaturesResult struct {
	Tile        string                     `json:"tile"`
	Layer       string                     `json:"layer"`
	Extent      uint32                     `json:"extent"`
	LayerExtent uint32                     `json:"layer_extent,omitempty"`
	Total       int                        `json:"total"`
	Offset      int                        `json:"offset,omitempty"`
	Matched     int                        `json:"matched,omitempty"`
	Indices     []int                      `json:"indices"`
	Features    *geojson.FeatureCollection `json:"features"`
	Errors      []FeatureError             `json:"errors,omitempty"`
}

// GetFeaturesInput is the input of get_features.
type GetFeaturesInput struct {
	core.TileRequest
	Layer  string `json:"layer"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// QueryFeaturesInput is the input of query_features.
type QueryFeaturesInput struct {
	core.TileRequest
	Layer string  `json:"layer"`
	MinX  float64 `json:"min_x"`
	MinY  float64 `json:"min_y"`
	MaxX  float64 `json:"max_x"`
	MaxY  float64 `json:"max_y"`
	Limit int     `json:"limit"`
}

// NearestFeaturesInput is the input of nearest_features.
type NearestFeaturesInput struct {
	core.TileRequest
	Layer  string  `json:"layer"`
	PointX float64 `json:"point_x"`
	PointY float64 `json:"point_y"`
	Count  int     `json:"count"`
}

// GetFeaturesTool returns the get_features tool definition.
func (r *Registry) GetFeaturesTool() mcp.Tool {
	return r.factory.CreateLayerTool("get_features",
		"List the features of one layer as GeoJSON in tile coordinates",
	)
}

// QueryFeaturesTool returns the query_features tool definition.
func (r *Registry) QueryFeaturesTool() mcp.Tool {
	return r.factory.CreateLayerTool("query_features",
		"Find the features of one layer whose bounding box meets a box in tile coordinates",
		mcp.WithNumber("min_x",
			mcp.Required(),
			mcp.Description("Left edge of the box in tile coordinates"),
		),
		mcp.WithNumber("min_y",
			mcp.Required(),
			mcp.Description("Top edge of the box in tile coordinates"),
		),
		mcp.WithNumber("max_x",
			mcp.Required(),
			mcp.Description("Right edge of the box in tile coordinates"),
		),
		mcp.WithNumber("max_y",
			mcp.Required(),
			mcp.Description("Bottom edge of the box in tile coordinates"),
		),
	)
}

// NearestFeaturesTool returns the nearest_features tool definition.
func (r *Registry) NearestFeaturesTool() mcp.Tool {
	return r.factory.CreateTileTool("nearest_features",
		"Find the features of one layer closest to a point in tile coordinates",
		mcp.WithString("layer",
			mcp.Required(),
			mcp.Description("Name of the layer inside the tile"),
		),
		mcp.WithNumber("point_x",
			mcp.Required(),
			mcp.Description("X of the point in tile coordinates"),
		),
		mcp.WithNumber("point_y",
			mcp.Required(),
			mcp.Description("Y of the point in tile coordinates"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of features to return"),
			mcp.DefaultNumber(5),
		),
	)
}

// HandleGetFeatures implements get_features.
func (r *Registry) HandleGetFeatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput[GetFeaturesInput](r.logger, "get_features",
		func(ctx context.Context, input GetFeaturesInput, logger *slog.Logger) (interface{}, error) {
			lt, err := r.loadTile(ctx, input.TileRequest, logger)
			if err != nil {
				return nil, err
			}
			l, err := layer(lt, input.Layer)
			if err != nil {
				return nil, err
			}

			start, end, err := core.ValidatePage(input.Offset, input.Limit, l.FeatureCount(), r.factory.MaxLimit())
			if err != nil {
				return nil, err
			}
			result := collect(lt.key(), l, lt.tile.CanonicalExtent(), pageIndices(start, end))
			result.Offset = start
			return result, nil
		})(ctx, req)
}

// HandleQueryFeatures implements query_features.
func (r *Registry) HandleQueryFeatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput[QueryFeaturesInput](r.logger, "query_features",
		func(ctx context.Context, input QueryFeaturesInput, logger *slog.Logger) (interface{}, error) {
			if input.MinX > input.MaxX || input.MinY > input.MaxY {
				return nil, core.NewValidationError(core.ErrInvalidParameter,
					fmt.Sprintf("box min (%g, %g) must not exceed max (%g, %g)", input.MinX, input.MinY, input.MaxX, input.MaxY))
			}

			lt, err := r.loadTile(ctx, input.TileRequest, logger)
			if err != nil {
				return nil, err
			}
			l, err := layer(lt, input.Layer)
			if err != nil {
				return nil, err
			}
			idx, err := r.layerIndex(lt, l)
			if err != nil {
				return nil, err
			}

			matched := idx.Query(orb.Bound{
				Min: orb.Point{input.MinX, input.MinY},
				Max: orb.Point{input.MaxX, input.MaxY},
			})
			_, end, err := core.ValidatePage(0, input.Limit, len(matched), r.factory.MaxLimit())
			if err != nil {
				return nil, err
			}

			result := collect(lt.key(), l, lt.tile.CanonicalExtent(), matched[:end])
			result.Matched = len(matched)
			logger.Debug("features queried", "tile", lt.key(), "layer", l.Name(), "matched", len(matched))
			return result, nil
		})(ctx, req)
}

// HandleNearestFeatures implements nearest_features.
func (r *Registry) HandleNearestFeatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput[NearestFeaturesInput](r.logger, "nearest_features",
		func(ctx context.Context, input NearestFeaturesInput, logger *slog.Logger) (interface{}, error) {
			count := input.Count
			if count <= 0 {
				count = 5
			}
			if count > r.factory.MaxLimit() {
				count = r.factory.MaxLimit()
			}

			lt, err := r.loadTile(ctx, input.TileRequest, logger)
			if err != nil {
				return nil, err
			}
			l, err := layer(lt, input.Layer)
			if err != nil {
				return nil, err
			}
			idx, err := r.layerIndex(lt, l)
			if err != nil {
				return nil, err
			}

			return collect(lt.key(), l, lt.tile.CanonicalExtent(), idx.Nearest(orb.Point{input.PointX, input.PointY}, count)), nil
		})(ctx, req)
}

// layerIndex returns the R-tree of l, reusing one built for the same
// decoded tile. Inline tiles are indexed on every call.
func (r *Registry) layerIndex(lt loadedTile, l *vectortile.Layer) (*index.FeatureIndex, error) {
	if lt.inline {
		return index.Build(l)
	}

	key := indexKey{id: lt.id, layer: l.Name()}
	if e, ok := r.indexes.Get(key); ok && e.tile == lt.tile {
		return e.idx, nil
	}

	idx, err := index.Build(l)
	if err != nil {
		return nil, err
	}
	r.indexes.Add(key, indexEntry{tile: lt.tile, idx: idx})
	r.logger.Debug("layer indexed", "tile", lt.key(), "layer", l.Name(), "features", idx.Len(), "empty", idx.Empty())
	return idx, nil
}

// collect converts the listed features of l, which may come from any
// tile source. extent is the span the geometry was decoded into. A
// feature that fails to decode is reported in Errors and left out.
func collect(key string, l tile.Layer, extent uint32, indices []int) *FeaturesResult {
	result := &FeaturesResult{
		Tile:     key,
		Layer:    l.Name(),
		Extent:   extent,
		Total:    l.FeatureCount(),
		Indices:  make([]int, 0, len(indices)),
		Features: geojson.NewFeatureCollection(),
	}
	if e, ok := l.(interface{ Extent() uint32 }); ok {
		result.LayerExtent = e.Extent()
	}
	for _, i := range indices {
		gf, err := toGeoJSON(l, i)
		if err != nil {
			result.Errors = append(result.Errors, featureError(l.Name(), i, err))
			continue
		}
		result.Indices = append(result.Indices, i)
		result.Features.Append(gf)
	}
	return result
}

func toGeoJSON(l tile.Layer, i int) (*geojson.Feature, error) {
	f, err := l.Feature(i)
	if err != nil {
		return nil, err
	}
	g, err := f.Geometries()
	if err != nil {
		return nil, err
	}
	props, err := f.Properties()
	if err != nil {
		return nil, err
	}

	gf := geojson.NewFeature(tile.ToOrb(g, f.Type()))
	if id, ok := f.ID(); ok {
		gf.ID = id
	}
	for k, v := range props {
		gf.Properties[k] = v.Interface()
	}
	return gf, nil
}

// pageIndices returns the indices [start, end).
func pageIndices(start, end int) []int {
	indices := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		indices = append(indices, i)
	}
	return indices
}
