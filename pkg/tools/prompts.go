package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const exploreTileInstructions = `You are inspecting a Mapbox vector tile.

1. Call decode_tile to list the layers, their feature counts and attribute keys.
2. Call get_features on a layer to read features. Geometry is in tile
   coordinates: (0, 0) is the north-west corner and canonical_extent the
   south-east one. Page with offset and limit.
3. Call query_features with a box, or nearest_features with a point, to
   look at one part of the tile.
4. Call tile_info to relate tile coordinates to latitude and longitude.

Features listed under "errors" failed to decode; the rest of the layer is
still valid. Report them with their code rather than retrying.`

// RegisterPrompts registers the prompts with the MCP server.
func (r *Registry) RegisterPrompts(mcpServer *server.MCPServer) {
	prompt := mcp.NewPrompt("explore_tile",
		mcp.WithPromptDescription("Walk through the contents of one vector tile"),
		mcp.WithArgument("tile",
			mcp.ArgumentDescription("Tile to explore as z/x/y"),
		),
	)
	r.logger.Info("registering prompt", "name", "explore_tile")
	mcpServer.AddPrompt(prompt, HandleExploreTilePrompt)
}

// HandleExploreTilePrompt returns the explore_tile prompt.
func HandleExploreTilePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	messages := []mcp.PromptMessage{
		mcp.NewPromptMessage(
			mcp.RoleAssistant,
			mcp.NewTextContent(exploreTileInstructions),
		),
	}
	if t := req.Params.Arguments["tile"]; t != "" {
		messages = append(messages, mcp.NewPromptMessage(
			mcp.RoleUser,
			mcp.NewTextContent(fmt.Sprintf("Explore tile %s.", t)),
		))
	}
	return mcp.NewGetPromptResult("Vector Tile Exploration", messages), nil
}
