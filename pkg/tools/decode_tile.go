package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/vtdecode/pkg/core"
)

// LayerSummary describes one layer of a decoded tile.
type LayerSummary struct {
	Name          string         `json:"name"`
	Version       uint32         `json:"version"`
	Extent        uint32         `json:"extent"`
	Features      int            `json:"features"`
	Keys          []string       `json:"keys"`
	Values        int            `json:"values"`
	DuplicateKeys int            `json:"duplicate_keys,omitempty"`
	Types         map[string]int `json:"types,omitempty"`
}

// TileSummary is the result of decode_tile.
type TileSummary struct {
	Tile            string         `json:"tile"`
	Bytes           int            `json:"bytes"`
	CanonicalExtent uint32         `json:"canonical_extent"`
	Layers          []LayerSummary `json:"layers"`
	DuplicateLayers int            `json:"duplicate_layers,omitempty"`
	Info            *core.TileInfo `json:"info,omitempty"`
	Errors          []FeatureError `json:"errors,omitempty"`
}

// DecodeTileInput is the input of decode_tile.
type DecodeTileInput struct {
	core.TileRequest
	CountTypes bool `json:"count_types,omitempty"`
}

// DecodeTileTool returns the decode_tile tool definition.
func (r *Registry) DecodeTileTool() mcp.Tool {
	return r.factory.CreateTileTool("decode_tile",
		"Decode a Mapbox vector tile and summarize its layers",
		mcp.WithBoolean("count_types",
			mcp.Description("Also count features by geometry type. This decodes every feature header."),
		),
	)
}

// HandleDecodeTile implements decode_tile.
func (r *Registry) HandleDecodeTile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput[DecodeTileInput](r.logger, "decode_tile",
		func(ctx context.Context, input DecodeTileInput, logger *slog.Logger) (interface{}, error) {
			lt, err := r.loadTile(ctx, input.TileRequest, logger)
			if err != nil {
				return nil, err
			}
			return r.summarize(lt, input.CountTypes)
		})(ctx, req)
}

// SummarizeBytes decodes raw tile bytes, gzip or plain, and summarizes
// them the way decode_tile does for inline data.
func (r *Registry) SummarizeBytes(data []byte, countTypes bool) (*TileSummary, error) {
	t, err := r.src.Decode(data)
	if err != nil {
		return nil, err
	}
	return r.summarize(loadedTile{tile: t, inline: true}, countTypes)
}

// summarize lists the layers of a loaded tile.
func (r *Registry) summarize(lt loadedTile, countTypes bool) (*TileSummary, error) {
	layers, err := lt.tile.Layers()
	if err != nil {
		return nil, err
	}
	dups, err := lt.tile.DuplicateLayers()
	if err != nil {
		return nil, err
	}

	summary := &TileSummary{
		Tile:            lt.key(),
		Bytes:           lt.tile.Size(),
		CanonicalExtent: lt.tile.CanonicalExtent(),
		Layers:          make([]LayerSummary, 0, len(layers)),
		DuplicateLayers: dups,
	}
	if !lt.inline {
		info := core.GetTileInfo(lt.id, r.src.Template(), lt.tile.CanonicalExtent())
		summary.Info = &info
	}

	for _, l := range layers {
		ls := LayerSummary{
			Name:          l.Name(),
			Version:       l.Version(),
			Extent:        l.Extent(),
			Features:      l.FeatureCount(),
			Keys:          l.Keys(),
			Values:        len(l.Values()),
			DuplicateKeys: l.DuplicateKeys(),
		}
		if countTypes {
			ls.Types = make(map[string]int)
			for i := 0; i < l.FeatureCount(); i++ {
				f, err := l.DecodeFeature(i)
				if err != nil {
					summary.Errors = append(summary.Errors, featureError(l.Name(), i, err))
					continue
				}
				ls.Types[f.Type().String()]++
			}
		}
		summary.Layers = append(summary.Layers, ls)
	}
	return summary, nil
}

// FeatureError reports a feature that failed to decode. The rest of the
// layer is still returned.
type FeatureError struct {
	Layer string `json:"layer"`
	Index int    `json:"index"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func featureError(layer string, i int, err error) FeatureError {
	return FeatureError{
		Layer: layer,
		Index: i,
		Code:  core.DecodeError(err).Code,
		Error: err.Error(),
	}
}

