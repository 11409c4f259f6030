// Package tools provides the MCP tools that expose decoded vector tiles.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/vtdecode/pkg/annotation"
	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/monitoring"
	"github.com/NERVsystems/vtdecode/pkg/source"
	"github.com/NERVsystems/vtdecode/pkg/tracing"
)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger      *slog.Logger
	factory     *core.ToolFactory
	src         *source.Source
	indexes     *lru.Cache[indexKey, indexEntry]
	annotations *annotation.Tile
}

// NewRegistry creates a new tool registry backed by src.
func NewRegistry(logger *slog.Logger, src *source.Source) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	// Size is a positive constant, so New cannot fail.
	indexes, _ := lru.New[indexKey, indexEntry](IndexCacheSize)
	return &Registry{
		logger:      logger.With("component", "tools"),
		factory:     core.NewToolFactory(MaxFeatureLimit),
		src:         src,
		indexes:     indexes,
		annotations: annotation.NewTile(),
	}
}

// ToolDefinition represents a vector tile MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	defs := []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version information for this vector tile MCP",
			Tool:        GetVersionTool(),
			Handler:     HandleGetVersion,
		},
		{
			Name:        "decode_tile",
			Description: "Decode a Mapbox vector tile and list its layers. Parameters: z, x, y (numbers) or data (base64 string)",
			Tool:        r.DecodeTileTool(),
			Handler:     r.HandleDecodeTile,
		},
		{
			Name:        "get_features",
			Description: "Page through the features of one layer as GeoJSON in tile coordinates. Parameters: z, x, y or data, layer (string), offset, limit (numbers)",
			Tool:        r.GetFeaturesTool(),
			Handler:     r.HandleGetFeatures,
		},
		{
			Name:        "query_features",
			Description: "Find the features of one layer whose bounding box meets a box in tile coordinates. Parameters: z, x, y or data, layer, min_x, min_y, max_x, max_y",
			Tool:        r.QueryFeaturesTool(),
			Handler:     r.HandleQueryFeatures,
		},
		{
			Name:        "nearest_features",
			Description: "Find the features of one layer closest to a point in tile coordinates. Parameters: z, x, y or data, layer, point_x, point_y, count",
			Tool:        r.NearestFeaturesTool(),
			Handler:     r.HandleNearestFeatures,
		},
		{
			Name:        "tile_info",
			Description: "Find the tile covering a position and describe its footprint. Parameters: latitude, longitude, zoom (numbers)",
			Tool:        r.TileInfoTool(),
			Handler:     r.HandleTileInfo,
		},
		{
			Name:        "tile_cache",
			Description: "Inspect, fill or evict cached tiles. Parameters: action (stats, list, prefetch, evict, purge), z, x, y for prefetch and evict, radius for prefetch",
			Tool:        r.TileCacheTool(),
			Handler:     r.HandleTileCache,
		},
		{
			Name:        "cut_geojson",
			Description: "Clip a GeoJSON feature collection to one tile and return it in tile coordinates. Parameters: z, x, y (numbers), geojson (string), layer, offset, limit",
			Tool:        r.CutGeoJSONTool(),
			Handler:     r.HandleCutGeoJSON,
		},
		{
			Name:        "annotations",
			Description: "Add, list or clear runtime annotation features in tile coordinates. Parameters: action (add, list, clear), layer, geometry (GeoJSON string), attributes (object)",
			Tool:        r.AnnotationsTool(),
			Handler:     r.HandleAnnotations,
		},
	}

	return defs
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		tracedHandler := r.wrapWithTracing(def.Name, def.Handler)
		mcpServer.AddTool(def.Tool, tracedHandler)
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing and
// request metrics.
func (r *Registry) wrapWithTracing(toolName string, handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()

		result, err := handler(ctx, req)

		duration := time.Since(startTime)
		durationMs := duration.Milliseconds()

		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, durationMs, resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", durationMs,
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns the names of all registered tools.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// RegisterAll registers tools, resources and prompts.
func (r *Registry) RegisterAll(mcpServer *server.MCPServer) {
	r.RegisterTools(mcpServer)
	r.RegisterResources(mcpServer)
	r.RegisterPrompts(mcpServer)
}
