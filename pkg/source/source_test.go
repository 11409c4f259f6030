package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/monitoring"
	"github.com/NERVsystems/vtdecode/pkg/tile"
	"github.com/NERVsystems/vtdecode/pkg/vectortile"
)

func pointLayers() mvt.Layers {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{10, 10})
	f.Properties["name"] = "a"
	fc.Append(f)
	return mvt.Layers{mvt.NewLayer("points", fc)}
}

func encodedTile(t *testing.T) []byte {
	t.Helper()
	data, err := mvt.Marshal(pointLayers())
	require.NoError(t, err)
	return data
}

func testOptions(url string, client *http.Client) Options {
	opts := DefaultOptions()
	opts.URLTemplate = url + "/{z}/{x}/{y}.pbf"
	opts.RequestsPerSecond = 0
	opts.Client = client
	opts.Retry = core.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
	opts.DecodeOptions = []vectortile.Option{vectortile.WithCanonicalExtent(4096)}
	return opts
}

func newTestSource(t *testing.T, srv *httptest.Server, mutate ...func(*Options)) *Source {
	t.Helper()
	opts := testOptions(srv.URL, srv.Client())
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func firstPoint(t *testing.T, d tile.Data) tile.Coordinate {
	t.Helper()
	l, ok, err := d.Layer("points")
	require.NoError(t, err)
	require.True(t, ok)
	f, err := l.Feature(0)
	require.NoError(t, err)
	g, err := f.Geometries()
	require.NoError(t, err)
	return g[0][0]
}

func TestLoadSharesOneFetch(t *testing.T) {
	body := encodedTile(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	id := maptile.New(1, 2, 3)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Load(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	vt, err := s.Load(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, tile.Coordinate{X: 10, Y: 10}, firstPoint(t, vt))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	stats := s.Stats()
	require.Equal(t, 1, stats.RawEntries)
	require.Equal(t, 1, stats.DecodedEntries)
	require.Equal(t, uint64(1), stats.Fetches)
	require.GreaterOrEqual(t, stats.Hits, uint64(1))
	require.True(t, s.Cached(id))
}

func TestRequestURL(t *testing.T) {
	body := encodedTile(t)
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	_, err := s.Load(context.Background(), maptile.New(5, 6, 7))
	require.NoError(t, err)
	require.Equal(t, "/7/5/6.pbf", <-paths)
}

func TestGzipPayload(t *testing.T) {
	body, err := mvt.MarshalGzipped(pointLayers())
	require.NoError(t, err)
	require.Equal(t, gzipMagic, body[:2])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	vt, err := s.Load(context.Background(), maptile.New(0, 0, 0))
	require.NoError(t, err)
	require.Equal(t, tile.Coordinate{X: 10, Y: 10}, firstPoint(t, vt))

	raw, err := s.Fetch(context.Background(), maptile.New(0, 0, 0))
	require.NoError(t, err)
	require.NotEqual(t, gzipMagic, raw[:2])
}

func TestEmptyTile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	vt, err := s.Load(context.Background(), maptile.New(0, 0, 0))
	require.NoError(t, err)
	names, err := vt.LayerNames()
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestDecodeFailureDropsRawBytes(t *testing.T) {
	good := encodedTile(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// layer field claiming five bytes with one present
			_, _ = w.Write([]byte{0x1a, 0x05, 0x0a})
			return
		}
		_, _ = w.Write(good)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	id := maptile.New(0, 0, 0)

	_, err := s.Load(context.Background(), id)
	require.ErrorIs(t, err, ErrTileUnavailable)
	require.ErrorIs(t, err, vectortile.ErrMalformedStream)
	require.Equal(t, 0, s.Stats().RawEntries)
	require.Equal(t, uint64(1), s.Stats().DecodeErrors)

	_, err = s.Load(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNotFoundIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	hc := monitoring.NewHealthChecker("test", "dev")
	defer hc.Shutdown()

	s := newTestSource(t, srv, func(o *Options) { o.Health = hc })
	_, err := s.Load(context.Background(), maptile.New(0, 0, 0))
	require.ErrorIs(t, err, ErrTileUnavailable)

	var mcpErr *core.MCPError
	require.True(t, errors.As(err, &mcpErr))
	require.Equal(t, string(core.ErrNoResults), mcpErr.Code)

	conn := hc.GetHealth().Connections[healthName]
	require.Equal(t, monitoring.StatusConnected, conn.Status)
	require.Equal(t, uint64(1), s.Stats().FetchErrors)
}

func TestServerErrorMarksHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hc := monitoring.NewHealthChecker("test", "dev")
	defer hc.Shutdown()

	s := newTestSource(t, srv, func(o *Options) { o.Health = hc })
	_, err := s.Load(context.Background(), maptile.New(0, 0, 0))
	require.Error(t, err)
	require.Equal(t, monitoring.StatusError, hc.GetHealth().Connections[healthName].Status)
}

func TestOversizedTile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	s := newTestSource(t, srv, func(o *Options) { o.MaxTileBytes = 32 })
	_, err := s.Fetch(context.Background(), maptile.New(0, 0, 0))
	require.Error(t, err)
}

func TestHandleNecessity(t *testing.T) {
	body := encodedTile(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	id := maptile.New(0, 0, 1)
	h := s.Tile(id)
	require.Same(t, h, s.Tile(id))
	require.Equal(t, vectortile.Optional, h.Necessity())

	_, err := h.Data(context.Background())
	require.ErrorIs(t, err, vectortile.ErrNotRequired)

	h.SetNecessity(vectortile.Required)
	d, err := h.Data(context.Background())
	require.NoError(t, err)
	require.Equal(t, tile.Coordinate{X: 10, Y: 10}, firstPoint(t, d))
	require.True(t, h.Loaded())

	// Loaded data survives a downgrade.
	h.SetNecessity(vectortile.Optional)
	_, err = h.Data(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, s.Stats().Handles)
	h.Release()
	require.Equal(t, 0, s.Stats().Handles)
}

func TestHandleOptionalAbandonsLoad(t *testing.T) {
	body := encodedTile(t)
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		_, _ = w.Write(body)
	}))
	defer srv.Close()
	defer close(release)

	s := newTestSource(t, srv)
	h := s.Tile(maptile.New(0, 0, 0))

	h.SetNecessity(vectortile.Required)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Data(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	h.SetNecessity(vectortile.Optional)
	_, err = h.Data(context.Background())
	require.ErrorIs(t, err, vectortile.ErrNotRequired)
	require.False(t, h.Loaded())
}

func TestHandleRequiredAgainBeforeAbandonedLoadEnds(t *testing.T) {
	body := encodedTile(t)
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	h := s.Tile(maptile.New(0, 0, 0))

	h.SetNecessity(vectortile.Required)
	<-started

	// Flip both ways before the first load's goroutine can record its
	// cancellation.
	h.mu.Lock()
	h.setNecessity(vectortile.Optional)
	h.setNecessity(vectortile.Required)
	h.mu.Unlock()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := h.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, tile.Coordinate{X: 10, Y: 10}, firstPoint(t, d))
	assert.Equal(t, vectortile.Required, h.Necessity())
}

func TestHandleRetriesAfterFailure(t *testing.T) {
	good := encodedTile(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte{0x1a, 0x05, 0x0a})
			return
		}
		_, _ = w.Write(good)
	}))
	defer srv.Close()

	s := newTestSource(t, srv)
	h := s.Tile(maptile.New(0, 0, 0))

	h.SetNecessity(vectortile.Required)
	_, err := h.Data(context.Background())
	require.ErrorIs(t, err, ErrTileUnavailable)
	require.True(t, vectortile.IsKind(err, vectortile.MalformedStream))

	h.SetNecessity(vectortile.Required)
	_, err = h.Data(context.Background())
	require.NoError(t, err)
}

func TestPrefetch(t *testing.T) {
	body := encodedTile(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newTestSource(t, srv, func(o *Options) {
		o.RequestsPerSecond = 1000
		o.Burst = 1
	})

	ids := []maptile.Tile{
		maptile.New(0, 0, 1), maptile.New(1, 0, 1),
		maptile.New(0, 1, 1), maptile.New(1, 1, 1),
	}
	require.NoError(t, s.Prefetch(context.Background(), ids))
	require.Equal(t, int32(4), atomic.LoadInt32(&calls))
	require.Equal(t, 4, s.Stats().DecodedEntries)

	require.True(t, s.Evict(ids[0]))
	require.False(t, s.Evict(ids[0]))
	require.False(t, s.Cached(ids[0]))

	s.Purge()
	require.Equal(t, 0, s.Stats().DecodedEntries)
	require.Equal(t, 0, s.Stats().RawEntries)
}

func TestDecodeInline(t *testing.T) {
	s, err := New(testOptions("http://localhost", nil), nil)
	require.NoError(t, err)
	defer s.Close()

	vt, err := s.Decode(encodedTile(t))
	require.NoError(t, err)
	require.Equal(t, tile.Coordinate{X: 10, Y: 10}, firstPoint(t, vt))
	require.Equal(t, 0, s.Stats().DecodedEntries)

	_, err = s.Decode([]byte{0x1a, 0x05, 0x0a})
	require.ErrorIs(t, err, vectortile.ErrMalformedStream)
}

func TestInvalidTemplate(t *testing.T) {
	opts := DefaultOptions()
	opts.URLTemplate = "http://localhost/tiles"
	_, err := New(opts, nil)
	require.Error(t, err)
}
