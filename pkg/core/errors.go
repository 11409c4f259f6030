// Package core provides shared utilities for the vector tile MCP tools.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/vtdecode/pkg/vectortile"
)

// ErrorCode defines standard error codes for MCP tools
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrInvalidZoom      ErrorCode = "INVALID_ZOOM"
	ErrInvalidTileIndex ErrorCode = "INVALID_TILE_INDEX"
	ErrEmptyParameter   ErrorCode = "EMPTY_PARAMETER"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrTileUnavailable    ErrorCode = "TILE_UNAVAILABLE"

	// Data errors
	ErrNoResults       ErrorCode = "NO_RESULTS"
	ErrLayerNotFound   ErrorCode = "LAYER_NOT_FOUND"
	ErrMalformedTile   ErrorCode = "MALFORMED_TILE"
	ErrSchemaViolation ErrorCode = "SCHEMA_VIOLATION"
	ErrUnsupported     ErrorCode = "UNSUPPORTED_GEOMETRY_COMMAND"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// MCPError represents a detailed error structure for MCP tool responses
type MCPError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e MCPError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new MCPError with the given code and message
func NewError(code ErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery adds query information to the error
func (e *MCPError) WithQuery(query string) *MCPError {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *MCPError) WithGuidance(guidance string) *MCPError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ToMCPResult converts the error to an MCP tool result
func (e *MCPError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// ServiceError creates an error for tile server failures
func ServiceError(service string, statusCode int, message string) *MCPError {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The tile server is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Please try again later."
	case http.StatusNotFound, http.StatusNoContent:
		code = ErrNoResults
		guidance = "The tile server has no tile at this index. Check zoom, x and y."
	case http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The request was invalid. Check your parameters and try again."
	case http.StatusInternalServerError:
		code = ErrInternalError
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "The tile server is temporarily unavailable. Please try again later."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// DecodeError maps a vector tile decode failure onto a tool error.
func DecodeError(err error) *MCPError {
	switch vectortile.KindOf(err) {
	case vectortile.MalformedStream:
		return NewError(ErrMalformedTile, err.Error()).
			WithGuidance("The tile bytes are truncated or not a vector tile.")
	case vectortile.SchemaViolation:
		return NewError(ErrSchemaViolation, err.Error()).
			WithGuidance("The tile is well formed protobuf but breaks the vector tile schema.")
	case vectortile.UnsupportedGeometryCommand:
		return NewError(ErrUnsupported, err.Error())
	}
	if errors.Is(err, vectortile.ErrFeatureIndex) {
		return NewValidationError(ErrInvalidParameter, err.Error())
	}
	return NewError(ErrInternalError, err.Error())
}

// NewValidationError creates an error for validation failures
func NewValidationError(code ErrorCode, message string) *MCPError {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}
