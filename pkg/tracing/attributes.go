package tracing

import (
	"github.com/paulmach/orb/maptile"
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for MCP operations
const (
	// MCP tool attributes
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	// Tile attributes
	AttrTileZ    = "vt.tile.z"
	AttrTileX    = "vt.tile.x"
	AttrTileY    = "vt.tile.y"
	AttrTileSize = "vt.tile.bytes"

	// Decode attributes
	AttrLayerName    = "vt.layer.name"
	AttrLayerCount   = "vt.layer.count"
	AttrFeatureCount = "vt.feature.count"
	AttrDecodeKind   = "vt.decode.error_kind"
	AttrGzip         = "vt.tile.gzip"

	// External service attributes
	AttrServiceName      = "vt.service.name"
	AttrServiceOperation = "vt.service.operation"
	AttrServiceURL       = "vt.service.url"
	AttrServiceStatus    = "vt.service.status"

	// Cache attributes
	AttrCacheType = "vt.cache.type"
	AttrCacheHit  = "vt.cache.hit"
	AttrCacheKey  = "vt.cache.key"

	// Rate limiting attributes
	AttrRateLimitService = "vt.ratelimit.service"
	AttrRateLimitWaitMs  = "vt.ratelimit.wait_ms"

	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPSessionID  = "mcp.session.id"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusRateLimited = "rate_limited"
)

// Service names
const (
	ServiceTiles = "tiles"
)

// Cache types
const (
	CacheTypeRaw     = "tile_raw"
	CacheTypeDecoded = "tile_decoded"
)

// Helper functions for common attributes

// MCPToolAttributes returns attributes for MCP tool execution
func MCPToolAttributes(toolName string, status string, durationMs int64, resultSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPToolStatus, status),
		attribute.Int64(AttrMCPToolDuration, durationMs),
		attribute.Int(AttrMCPResultSize, resultSize),
	}
}

// TileAttributes returns attributes identifying a tile
func TileAttributes(id maptile.Tile) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrTileZ, int(id.Z)),
		attribute.Int(AttrTileX, int(id.X)),
		attribute.Int(AttrTileY, int(id.Y)),
	}
}

// ServiceAttributes returns attributes for external service calls
func ServiceAttributes(service, operation, url string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceName, service),
		attribute.String(AttrServiceOperation, operation),
		attribute.String(AttrServiceURL, url),
		attribute.Int(AttrServiceStatus, status),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
