package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// waitForEndpoint polls the given URL until it returns 200 OK or timeout
func waitForEndpoint(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url) // #nosec G107 -- test helper
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("endpoint %s did not become ready", url)
}

// buildBinary compiles the server into a temporary directory.
func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binPath := filepath.Join(t.TempDir(), "vtdecode-test")
	buildCmd := exec.Command("go", "build", "-o", binPath, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("build failed: %v\n%s", err, out)
	}
	return binPath
}

func TestServerMainHealth(t *testing.T) {
	binPath := buildBinary(t)

	// Pick an available TCP port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runCmd := exec.CommandContext(ctx, binPath,
		"--enable-http",
		"--http-only",
		"--http-addr", fmt.Sprintf("127.0.0.1:%d", port),
		"--enable-monitoring=false",
	)
	if err := runCmd.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer func() {
		_ = runCmd.Process.Signal(syscall.SIGTERM)
		runCmd.Wait() // wait for shutdown
	}()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	if err := waitForEndpoint(healthURL, 5*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port)) // #nosec G107 -- test request
	if err != nil {
		t.Fatalf("failed GET /: %v", err)
	}
	defer resp.Body.Close()
	var discovery map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		t.Fatalf("discovery is not JSON: %v", err)
	}
	if discovery["service"] != "vtdecode-mcp-server" {
		t.Errorf("unexpected service %v", discovery["service"])
	}
}

func TestDecodeFlag(t *testing.T) {
	binPath := buildBinary(t)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{10, 10}))
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {20, 20}}))
	data, err := mvt.MarshalGzipped(mvt.Layers{mvt.NewLayer("mixed", fc)})
	if err != nil {
		t.Fatalf("marshal tile: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tile.mvt.gz")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write tile: %v", err)
	}

	out, err := exec.Command(binPath, "-decode", path, "-count-types").Output()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	var summary struct {
		Tile   string `json:"tile"`
		Layers []struct {
			Name     string         `json:"name"`
			Features int            `json:"features"`
			Types    map[string]int `json:"types"`
		} `json:"layers"`
	}
	if err := json.Unmarshal(out, &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if summary.Tile != "inline" || len(summary.Layers) != 1 {
		t.Fatalf("unexpected summary: %s", out)
	}
	l := summary.Layers[0]
	if l.Name != "mixed" || l.Features != 2 {
		t.Errorf("unexpected layer: %+v", l)
	}
	if l.Types["Point"] != 1 || l.Types["LineString"] != 1 {
		t.Errorf("unexpected types: %v", l.Types)
	}

	if err := exec.Command(binPath, "-decode", filepath.Join(t.TempDir(), "missing")).Run(); err == nil {
		t.Error("decoding a missing file should fail")
	}
}
