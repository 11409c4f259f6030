package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb/maptile"

	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/source"
	"github.com/NERVsystems/vtdecode/pkg/vectortile"
)

// ErrorResponse creates a plain error result.
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	// Convert the arguments to JSON
	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, ErrorResponse(fmt.Sprintf("Invalid input format: %v", err)), err
	}

	// Parse into the specified type
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("Failed to parse input: %v", err)).ToMCPResult(), err
	}

	return input, nil, nil
}

// WithParsedInput is a higher-order function that handles request parsing and error handling
func WithParsedInput[T any](
	logger *slog.Logger,
	handlerName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := logger.With("tool", handlerName)

		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Error("failed to parse input", "error", err)
			return errResult, nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			logger.Error("handler error", "error", err)
			return toolError(err).ToMCPResult(), nil
		}

		resultBytes, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}

		return mcp.NewToolResultText(string(resultBytes)), nil
	}
}

// toolError maps a handler error onto the error codes tools report.
func toolError(err error) *core.MCPError {
	if vectortile.KindOf(err) != 0 || errors.Is(err, vectortile.ErrFeatureIndex) {
		return core.DecodeError(err)
	}

	var mcpErr *core.MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewError(core.ErrServiceTimeout, err.Error()).
			WithGuidance("The tile did not arrive in time. Please try again.")
	case errors.Is(err, context.Canceled):
		return core.NewError(core.ErrServiceUnavailable, err.Error())
	case errors.Is(err, source.ErrTileUnavailable):
		return core.NewError(core.ErrTileUnavailable, err.Error())
	}
	return core.NewError(core.ErrInternalError, err.Error())
}

// loadedTile is a decoded tile together with where it came from.
type loadedTile struct {
	tile   *vectortile.Tile
	id     maptile.Tile
	inline bool
}

// key names the tile in logs and results.
func (lt loadedTile) key() string {
	if lt.inline {
		return "inline"
	}
	return tileName(lt.id)
}

// loadTile decodes the inline bytes of req or loads the tile it addresses.
func (r *Registry) loadTile(ctx context.Context, req core.TileRequest, logger *slog.Logger) (loadedTile, error) {
	if req.Inline() {
		data, err := req.Bytes()
		if err != nil {
			return loadedTile{}, err
		}
		t, err := r.src.Decode(data)
		if err != nil {
			logger.Warn("inline tile failed to decode", "bytes", len(data), "error", err)
			return loadedTile{}, err
		}
		return loadedTile{tile: t, inline: true}, nil
	}

	id, err := core.TileWithLog(req, logger)
	if err != nil {
		return loadedTile{}, err
	}
	t, err := r.src.Load(ctx, id)
	if err != nil {
		return loadedTile{}, err
	}
	return loadedTile{tile: t, id: id}, nil
}

// layer looks up a named layer of a loaded tile.
func layer(lt loadedTile, name string) (*vectortile.Layer, error) {
	if name == "" {
		return nil, core.NewValidationError(core.ErrEmptyParameter, "layer must not be empty")
	}
	l, found, err := lt.tile.VectorLayer(name)
	if err != nil {
		return nil, err
	}
	if !found {
		names, _ := lt.tile.LayerNames()
		return nil, core.NewError(core.ErrLayerNotFound, fmt.Sprintf("tile %s has no layer %q", lt.key(), name)).
			WithSuggestions(names...)
	}
	return l, nil
}
