package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/paulmach/orb/maptile"

	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/tracing"
)

// TileMIMEType is the media type of raw vector tile bytes.
const TileMIMEType = "application/vnd.mapbox-vector-tile"

// RegisterResources registers the tile resource template.
func (r *Registry) RegisterResources(mcpServer *server.MCPServer) {
	tmpl := mcp.NewResourceTemplate(TileResourceTemplate, "Vector tile",
		mcp.WithTemplateDescription("A decoded vector tile: a JSON layer summary followed by the raw tile bytes"),
		mcp.WithTemplateMIMEType(TileResourceMIMEType),
	)
	r.logger.Info("registering resource template", "uri", TileResourceTemplate)
	mcpServer.AddResourceTemplate(tmpl, r.ReadTileResource)
}

// ReadTileResource loads the tile named by a vt://tile/{z}/{x}/{y} URI.
func (r *Registry) ReadTileResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	ctx, span := tracing.StartSpan(ctx, "mcp.resource.tile")
	defer span.End()

	id, err := parseTileURI(uri)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	t, err := r.src.Load(ctx, id)
	if err != nil {
		r.logger.Warn("tile resource unavailable", "uri", uri, "error", err)
		span.RecordError(err)
		return nil, toolError(err)
	}
	summary, err := r.summarize(loadedTile{tile: t, id: id}, false)
	if err != nil {
		return nil, toolError(err)
	}
	text, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal tile summary: %w", err)
	}

	contents := []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: TileResourceMIMEType,
			Text:     string(text),
		},
	}

	// Served from the raw cache the load just filled.
	if raw, err := r.src.Fetch(ctx, id); err == nil {
		contents = append(contents, mcp.BlobResourceContents{
			URI:      uri,
			MIMEType: TileMIMEType,
			Blob:     base64.StdEncoding.EncodeToString(raw),
		})
	}

	r.logger.Debug("read tile resource", "uri", uri, "layers", len(summary.Layers), "contents", len(contents))
	return contents, nil
}

// parseTileURI parses vt://tile/{z}/{x}/{y}.
func parseTileURI(uri string) (maptile.Tile, error) {
	var z, x, y int
	var rest string
	n, _ := fmt.Sscanf(uri, "vt://tile/%d/%d/%d%s", &z, &x, &y, &rest)
	if n < 3 || rest != "" {
		return maptile.Tile{}, core.NewValidationError(core.ErrInvalidParameter,
			fmt.Sprintf("invalid tile URI %q, expected vt://tile/{z}/{x}/{y}", uri))
	}
	return core.ValidateTile(z, x, y)
}
