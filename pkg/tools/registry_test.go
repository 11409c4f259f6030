package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/monitoring"
	"github.com/NERVsystems/vtdecode/pkg/source"
	"github.com/NERVsystems/vtdecode/pkg/vectortile"
)

func TestToolNames(t *testing.T) {
	f := newFixture(t)

	names := f.registry.GetToolNames()
	for _, want := range []string{"get_version", "decode_tile", "get_features", "query_features", "nearest_features", "tile_info", "tile_cache"} {
		assert.Contains(t, names, want)
	}

	for _, def := range f.registry.GetToolDefinitions() {
		assert.Equal(t, def.Name, def.Tool.Name, "definition and tool name differ")
		assert.NotEmpty(t, def.Description)
		assert.NotNil(t, def.Handler)
	}
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t)

	srv := server.NewMCPServer("vtdecode-test", "test",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)
	require.NotPanics(t, func() { f.registry.RegisterAll(srv) })
}

func TestWrapWithTracingRecordsRequests(t *testing.T) {
	f := newFixture(t)

	success := monitoring.MCPRequestsTotal.WithLabelValues("wrapped_test", "success")
	failure := monitoring.MCPRequestsTotal.WithLabelValues("wrapped_test", "error")
	beforeOK, beforeErr := testutil.ToFloat64(success), testutil.ToFloat64(failure)

	ok := f.registry.wrapWithTracing("wrapped_test", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("{}"), nil
	})
	result, err := ok(context.Background(), callRequest("wrapped_test", nil))
	require.NoError(t, err)
	AssertSuccessResult(t, result, "wrapped handler failed")

	failing := f.registry.wrapWithTracing("wrapped_test", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return core.NewError(core.ErrInternalError, "boom").ToMCPResult(), nil
	})
	result, err = failing(context.Background(), callRequest("wrapped_test", nil))
	require.NoError(t, err)
	AssertErrorResult(t, result, "error result should pass through")

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(success))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(failure))
}

func TestGetVersion(t *testing.T) {
	result, err := HandleGetVersion(context.Background(), callRequest("get_version", nil))
	require.NoError(t, err)
	AssertSuccessResult(t, result, "get_version failed")

	var info VersionInfo
	require.NoError(t, ParseResultJSON(result, &info))
	assert.Equal(t, "dev", info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestToolError(t *testing.T) {
	timeout, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-timeout.Done()

	_, decodeErr := vectortile.New([]byte{0x1a, 0x05, 0x0a}).Layers()
	require.Error(t, decodeErr)

	tests := []struct {
		name string
		err  error
		code core.ErrorCode
	}{
		{name: "deadline", err: timeout.Err(), code: core.ErrServiceTimeout},
		{name: "unavailable", err: fmt.Errorf("%w: 1/0/0: connection refused", source.ErrTileUnavailable), code: core.ErrTileUnavailable},
		{name: "mcp error", err: core.NewError(core.ErrRateLimit, "slow down"), code: core.ErrRateLimit},
		{name: "wrapped mcp error", err: fmt.Errorf("%w: %w", source.ErrTileUnavailable, core.NewError(core.ErrNoResults, "gone")), code: core.ErrNoResults},
		{name: "decode error", err: fmt.Errorf("%w: 1/0/0: %w", source.ErrTileUnavailable, decodeErr), code: core.ErrMalformedTile},
		{name: "feature index", err: fmt.Errorf("feature 9: %w", vectortile.ErrFeatureIndex), code: core.ErrInvalidParameter},
		{name: "other", err: errors.New("boom"), code: core.ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, string(tt.code), toolError(tt.err).Code)
		})
	}
}

func TestReadTileResource(t *testing.T) {
	f := newFixture(t)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = "vt://tile/7/5/6"
	contents, err := f.registry.ReadTileResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 2)

	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, TileResourceMIMEType, text.MIMEType)
	assert.Contains(t, text.Text, `"name":"points"`)

	blob, ok := contents[1].(mcp.BlobResourceContents)
	require.True(t, ok)
	assert.Equal(t, TileMIMEType, blob.MIMEType)
	raw, err := base64.StdEncoding.DecodeString(blob.Blob)
	require.NoError(t, err)
	assert.Equal(t, f.tile, raw)

	// The raw bytes came from the cache the load filled.
	assert.Equal(t, int32(1), f.requests.Load())
}

func TestParseTileURI(t *testing.T) {
	tests := []struct {
		uri     string
		wantErr bool
	}{
		{uri: "vt://tile/7/5/6"},
		{uri: "vt://tile/0/0/0"},
		{uri: "vt://tile/7/5", wantErr: true},
		{uri: "vt://tile/7/5/6/extra", wantErr: true},
		{uri: "osm://tile/7/5/6", wantErr: true},
		{uri: "vt://tile/2/4/0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			id, err := parseTileURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.uri, tileURI(id))
		})
	}
}

func TestExploreTilePrompt(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"tile": "7/5/6"}

	result, err := HandleExploreTilePrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, mcp.RoleUser, result.Messages[1].Role)

	result, err = HandleExploreTilePrompt(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)
	assert.Len(t, result.Messages, 1)
}

func TestSummarizeBytes(t *testing.T) {
	f := newFixture(t)

	summary, err := f.registry.SummarizeBytes(f.tile, true)
	require.NoError(t, err)
	assert.Equal(t, "inline", summary.Tile)
	assert.Nil(t, summary.Info)
	require.Len(t, summary.Layers, 2)
	assert.Equal(t, map[string]int{"Point": 2}, summary.Layers[0].Types)

	_, err = f.registry.SummarizeBytes([]byte{0x1a, 0x05, 0x0a}, false)
	require.Error(t, err)
	assert.Equal(t, string(core.ErrMalformedTile), toolError(err).Code)
}
