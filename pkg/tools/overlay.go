package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/vtdecode/pkg/annotation"
	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/geojsontile"
	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// DefaultGeoJSONLayer names the layer cut_geojson fills when none is given.
const DefaultGeoJSONLayer = "geojson"

// CutGeoJSONInput is the input of cut_geojson.
type CutGeoJSONInput struct {
	Z       *int   `json:"z"`
	X       *int   `json:"x"`
	Y       *int   `json:"y"`
	GeoJSON string `json:"geojson"`
	Layer   string `json:"layer"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
}

// AnnotationsInput is the input of annotations.
type AnnotationsInput struct {
	Action     string            `json:"action"`
	Layer      string            `json:"layer"`
	Geometry   string            `json:"geometry"`
	Attributes map[string]string `json:"attributes"`
	Offset     int               `json:"offset"`
	Limit      int               `json:"limit"`
}

// AnnotationAdded is the result of annotations add.
type AnnotationAdded struct {
	Layer    string `json:"layer"`
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Features int    `json:"features"`
}

// CutGeoJSONTool returns the cut_geojson tool definition.
func (r *Registry) CutGeoJSONTool() mcp.Tool {
	return r.factory.CreateBasicTool("cut_geojson",
		"Clip a GeoJSON feature collection to one tile and return it in tile coordinates",
		mcp.WithNumber("z",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Zoom level of the tile (0-%d)", core.MaxZoom)),
		),
		mcp.WithNumber("x",
			mcp.Required(),
			mcp.Description("Tile column"),
		),
		mcp.WithNumber("y",
			mcp.Required(),
			mcp.Description("Tile row, counted from the north edge"),
		),
		mcp.WithString("geojson",
			mcp.Required(),
			mcp.Description("GeoJSON FeatureCollection with WGS84 coordinates"),
		),
		mcp.WithString("layer",
			mcp.Description("Layer name for the clipped features"),
			mcp.DefaultString(DefaultGeoJSONLayer),
		),
		mcp.WithNumber("offset",
			mcp.Description("Index of the first feature to return"),
			mcp.DefaultNumber(0),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of features to return (max %d)", r.factory.MaxLimit())),
			mcp.DefaultNumber(float64(r.factory.MaxLimit())),
		),
	)
}

// AnnotationsTool returns the annotations tool definition.
func (r *Registry) AnnotationsTool() mcp.Tool {
	return r.factory.CreateBasicTool("annotations",
		"Keep runtime annotation layers next to the decoded tiles",
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("add, list or clear"),
			mcp.Enum("add", "list", "clear"),
		),
		mcp.WithString("layer",
			mcp.Required(),
			mcp.Description("Annotation layer name"),
		),
		mcp.WithString("geometry",
			mcp.Description("GeoJSON geometry in tile coordinates, for add"),
		),
		mcp.WithObject("attributes",
			mcp.Description("String attributes of the new feature, for add"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Index of the first feature to list"),
			mcp.DefaultNumber(0),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of features to list"),
			mcp.DefaultNumber(float64(r.factory.MaxLimit())),
		),
	)
}

// HandleCutGeoJSON implements cut_geojson.
func (r *Registry) HandleCutGeoJSON(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput[CutGeoJSONInput](r.logger, "cut_geojson",
		func(ctx context.Context, input CutGeoJSONInput, logger *slog.Logger) (interface{}, error) {
			id, err := core.TileWithLog(core.TileRequest{Z: input.Z, X: input.X, Y: input.Y}, logger)
			if err != nil {
				return nil, err
			}
			if input.GeoJSON == "" {
				return nil, core.NewValidationError(core.ErrEmptyParameter, "geojson must not be empty")
			}
			fc, err := geojson.UnmarshalFeatureCollection([]byte(input.GeoJSON))
			if err != nil {
				return nil, core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("geojson is not a feature collection: %v", err))
			}

			name := input.Layer
			if name == "" {
				name = DefaultGeoJSONLayer
			}
			opts := geojsontile.DefaultOptions()
			opts.Extent = r.src.CanonicalExtent()
			gt := geojsontile.New(id, map[string]*geojson.FeatureCollection{name: fc}, opts)

			l, _, err := gt.Layer(name)
			if err != nil {
				return nil, err
			}
			start, end, err := core.ValidatePage(input.Offset, input.Limit, l.FeatureCount(), r.factory.MaxLimit())
			if err != nil {
				return nil, err
			}
			logger.Debug("geojson cut", "tile", tileName(id), "input", len(fc.Features), "kept", l.FeatureCount())

			result := collect(tileName(id), l, opts.Extent, pageIndices(start, end))
			result.Offset = start
			return result, nil
		})(ctx, req)
}

// HandleAnnotations implements annotations.
func (r *Registry) HandleAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput[AnnotationsInput](r.logger, "annotations",
		func(ctx context.Context, input AnnotationsInput, logger *slog.Logger) (interface{}, error) {
			if input.Layer == "" {
				return nil, core.NewValidationError(core.ErrEmptyParameter, "layer must not be empty")
			}

			switch input.Action {
			case "add":
				return r.addAnnotation(input, logger)
			case "list":
				l, ok, err := r.annotations.Layer(input.Layer)
				if err != nil {
					return nil, err
				}
				if !ok {
					names, _ := r.annotations.LayerNames()
					return nil, core.NewError(core.ErrLayerNotFound, fmt.Sprintf("no annotation layer %q", input.Layer)).
						WithSuggestions(names...)
				}
				start, end, err := core.ValidatePage(input.Offset, input.Limit, l.FeatureCount(), r.factory.MaxLimit())
				if err != nil {
					return nil, err
				}
				result := collect(annotationKey, l, r.src.CanonicalExtent(), pageIndices(start, end))
				result.Offset = start
				return result, nil
			case "clear":
				r.annotations.AddLayer(annotation.NewLayer(input.Layer))
				logger.Info("annotation layer cleared", "layer", input.Layer)
				return map[string]string{"layer": input.Layer, "status": "cleared"}, nil
			default:
				return nil, core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("unknown action %q", input.Action)).
					WithSuggestions("add", "list", "clear")
			}
		})(ctx, req)
}

// annotationKey is the tile name reported for annotation listings.
const annotationKey = "annotations"

func (r *Registry) addAnnotation(input AnnotationsInput, logger *slog.Logger) (*AnnotationAdded, error) {
	if input.Geometry == "" {
		return nil, core.NewValidationError(core.ErrMissingParameter, "geometry is required for add")
	}
	g, err := geojson.UnmarshalGeometry([]byte(input.Geometry))
	if err != nil {
		return nil, core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("geometry is not GeoJSON: %v", err))
	}
	typ, rings := geojsontile.Geometry(g.Geometry())
	if typ == tile.Unknown || len(rings) == 0 {
		return nil, core.NewValidationError(core.ErrInvalidParameter, "geometry must be a non-empty point, line or polygon")
	}

	l := r.annotations.EnsureLayer(input.Layer)
	l.AddFeature(annotation.NewFeature(typ, rings, input.Attributes))
	n := l.FeatureCount()
	logger.Debug("annotation added", "layer", input.Layer, "type", typ.String(), "features", n)

	return &AnnotationAdded{
		Layer:    input.Layer,
		Index:    n - 1,
		Type:     typ.String(),
		Features: n,
	}, nil
}
