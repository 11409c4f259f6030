package core

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFactory provides a simplified way to create new tool definitions
// with standardized parameters
type ToolFactory struct {
	maxLimit int
}

// NewToolFactory creates a new tool factory. maxLimit caps paged
// feature listings.
func NewToolFactory(maxLimit int) *ToolFactory {
	return &ToolFactory{maxLimit: maxLimit}
}

// MaxLimit is the largest page size the factory advertises.
func (f *ToolFactory) MaxLimit() int { return f.maxLimit }

// CreateBasicTool creates a new tool with the specified name and description
func (f *ToolFactory) CreateBasicTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
}

func tileOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("z",
			mcp.Description(fmt.Sprintf("Zoom level of the tile (0-%d)", MaxZoom)),
		),
		mcp.WithNumber("x",
			mcp.Description("Tile column"),
		),
		mcp.WithNumber("y",
			mcp.Description("Tile row, counted from the north edge"),
		),
		mcp.WithString("data",
			mcp.Description("Base64 encoded tile bytes, used instead of z/x/y"),
		),
	}
}

// CreateTileTool creates a tool addressed by z/x/y or inline tile data.
func (f *ToolFactory) CreateTileTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, tileOptions()...)
	return mcp.NewTool(name, append(all, opts...)...)
}

// CreateLayerTool creates a tile tool that also names a layer and pages
// through its features.
func (f *ToolFactory) CreateLayerTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	limitDesc := "Maximum number of features to return"
	if f.maxLimit > 0 {
		limitDesc += fmt.Sprintf(" (max %d)", f.maxLimit)
	}

	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, tileOptions()...)
	all = append(all,
		mcp.WithString("layer",
			mcp.Required(),
			mcp.Description("Name of the layer inside the tile"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Index of the first feature to return"),
			mcp.DefaultNumber(0),
		),
		mcp.WithNumber("limit",
			mcp.Description(limitDesc),
			mcp.DefaultNumber(float64(f.maxLimit)),
		),
	)
	return mcp.NewTool(name, append(all, opts...)...)
}
