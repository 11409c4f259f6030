// Package source fetches vector tiles from a z/x/y tile server and keeps
// both the raw payloads and the decoded tiles in memory.
//
// Concurrent loads of the same tile share one request. Raw bytes live in
// an expiring cache; decoded tiles live in an LRU keyed by tile index, and
// dropping a decoded tile releases the buffer it was reading from.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/maptile"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/vtdecode/pkg/cache"
	"github.com/NERVsystems/vtdecode/pkg/core"
	"github.com/NERVsystems/vtdecode/pkg/monitoring"
	"github.com/NERVsystems/vtdecode/pkg/tracing"
	"github.com/NERVsystems/vtdecode/pkg/vectortile"
)

// ErrTileUnavailable is returned when a tile cannot be fetched or decoded.
// The underlying cause is wrapped alongside it.
var ErrTileUnavailable = errors.New("tile unavailable")

// healthName is the upstream name reported to the health checker.
const healthName = "tile_server"

var gzipMagic = []byte{0x1f, 0x8b}

// Options configures a Source.
type Options struct {
	// URLTemplate is expanded with {z}, {x} and {y} (or {-y}).
	URLTemplate string

	RequestsPerSecond float64 // <= 0 disables rate limiting
	Burst             int

	RawTTL       time.Duration
	RawCacheSize int

	DecodedCacheSize int

	// PrefetchConcurrency bounds the loads started by Prefetch.
	PrefetchConcurrency int

	// MaxTileBytes rejects payloads larger than this after inflation.
	MaxTileBytes int64

	Retry  core.RetryOptions
	Client *http.Client

	// DecodeOptions are passed to vectortile.New for every tile.
	DecodeOptions []vectortile.Option

	// Health, when set, receives the outcome of every fetch.
	Health *monitoring.HealthChecker
}

// DefaultOptions returns options for a polite client of a public tile
// server.
func DefaultOptions() Options {
	return Options{
		URLTemplate:         core.DefaultTileURL,
		RequestsPerSecond:   10,
		Burst:               20,
		RawTTL:              time.Hour,
		RawCacheSize:        512,
		DecodedCacheSize:    128,
		PrefetchConcurrency: 4,
		MaxTileBytes:        16 << 20,
		Retry:               core.DefaultRetryOptions,
	}
}

// Stats is a snapshot of the source's caches and counters.
type Stats struct {
	RawEntries     int    `json:"raw_entries"`
	DecodedEntries int    `json:"decoded_entries"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	Fetches        uint64 `json:"fetches"`
	FetchErrors    uint64 `json:"fetch_errors"`
	DecodeErrors   uint64 `json:"decode_errors"`
	Handles        int    `json:"handles"`
}

// Source loads tiles by index.
type Source struct {
	opts    Options
	logger  *slog.Logger
	limiter *rate.Limiter
	group   singleflight.Group

	raw     *cache.TTLCache[maptile.Tile, []byte]
	decoded *lru.Cache[maptile.Tile, *vectortile.Tile]

	mu      sync.Mutex
	handles map[maptile.Tile]*TileHandle

	hits, misses, fetches, fetchErrors, decodeErrors atomic.Uint64
}

// New creates a Source. A nil logger uses slog.Default.
func New(opts Options, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := core.ValidateTileURL(opts.URLTemplate); err != nil {
		return nil, err
	}
	if opts.DecodedCacheSize <= 0 {
		opts.DecodedCacheSize = DefaultOptions().DecodedCacheSize
	}
	if opts.PrefetchConcurrency <= 0 {
		opts.PrefetchConcurrency = 1
	}
	if opts.Client == nil {
		opts.Client = core.DefaultClient
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	s := &Source{
		opts:    opts,
		logger:  logger.With("component", "source"),
		limiter: rate.NewLimiter(limit, burst),
		raw:     cache.NewTTLCache[maptile.Tile, []byte](opts.RawTTL, time.Minute, opts.RawCacheSize),
		handles: make(map[maptile.Tile]*TileHandle),
	}

	decoded, err := lru.NewWithEvict[maptile.Tile, *vectortile.Tile](opts.DecodedCacheSize, func(id maptile.Tile, _ *vectortile.Tile) {
		s.logger.Debug("decoded tile evicted", "tile", tileKey(id))
	})
	if err != nil {
		s.raw.Stop()
		return nil, fmt.Errorf("decoded cache: %w", err)
	}
	s.decoded = decoded

	s.raw.OnEvict(func(maptile.Tile, []byte) {
		monitoring.UpdateCacheSize(tracing.CacheTypeRaw, s.raw.Count())
	})

	return s, nil
}

// Close stops background work. Cached tiles remain readable.
func (s *Source) Close() {
	s.raw.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		h.SetNecessity(vectortile.Optional)
	}
}

// URL returns the request URL for a tile.
func (s *Source) URL(id maptile.Tile) string {
	return core.TileURL(s.opts.URLTemplate, id)
}

// Template returns the tile URL template.
func (s *Source) Template() string { return s.opts.URLTemplate }

// CanonicalExtent returns the extent decoded geometry is scaled to.
func (s *Source) CanonicalExtent() uint32 {
	return vectortile.New(nil, s.opts.DecodeOptions...).CanonicalExtent()
}

// Decode wraps data with the source's decode options. It does not touch
// the caches.
func (s *Source) Decode(data []byte) (*vectortile.Tile, error) {
	data, err := s.inflate(data)
	if err != nil {
		return nil, err
	}
	t := vectortile.New(data, s.opts.DecodeOptions...)
	return t, s.ensureParsed(t)
}

// Load returns the decoded tile at id, fetching it if needed.
func (s *Source) Load(ctx context.Context, id maptile.Tile) (*vectortile.Tile, error) {
	if t, ok := s.decoded.Get(id); ok {
		s.hits.Add(1)
		monitoring.RecordCacheHit(tracing.CacheTypeDecoded)
		return t, nil
	}
	s.misses.Add(1)
	monitoring.RecordCacheMiss(tracing.CacheTypeDecoded)

	ch := s.group.DoChan(tileKey(id), func() (interface{}, error) {
		// The shared load outlives any single caller.
		return s.load(context.WithoutCancel(ctx), id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*vectortile.Tile), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) load(ctx context.Context, id maptile.Tile) (*vectortile.Tile, error) {
	ctx, span := tracing.StartTileSpan(ctx, "source.load", id)
	defer span.End()

	if t, ok := s.decoded.Peek(id); ok {
		return t, nil
	}

	data, err := s.fetch(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrTileUnavailable, tileKey(id), err)
	}

	t := vectortile.New(data, s.opts.DecodeOptions...)
	if err := s.ensureParsed(t); err != nil {
		// Drop the bytes so the next load goes back to the server.
		s.raw.Delete(id)
		span.RecordError(err)
		span.SetAttributes(attribute.String(tracing.AttrDecodeKind, vectortile.KindOf(err).String()))
		span.SetStatus(codes.Error, "decode failed")
		s.logger.Warn("tile failed to decode", "tile", tileKey(id), "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrTileUnavailable, tileKey(id), err)
	}

	s.decoded.Add(id, t)
	monitoring.UpdateCacheSize(tracing.CacheTypeDecoded, s.decoded.Len())
	span.SetStatus(codes.Ok, "")
	return t, nil
}

func (s *Source) ensureParsed(t *vectortile.Tile) error {
	start := time.Now()
	err := t.EnsureParsed()
	kind := ""
	if err != nil {
		s.decodeErrors.Add(1)
		kind = vectortile.KindOf(err).String()
		monitoring.RecordError("source", "decode")
	}
	monitoring.RecordDecode(time.Since(start), kind)
	return err
}

// Fetch returns the raw, inflated bytes of a tile.
func (s *Source) Fetch(ctx context.Context, id maptile.Tile) ([]byte, error) {
	return s.fetch(ctx, id)
}

func (s *Source) fetch(ctx context.Context, id maptile.Tile) ([]byte, error) {
	if data, ok := s.raw.Get(id); ok {
		monitoring.RecordCacheHit(tracing.CacheTypeRaw)
		tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeRaw, true, tileKey(id))...)
		return data, nil
	}
	monitoring.RecordCacheMiss(tracing.CacheTypeRaw)

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	url := s.URL(id)
	start := time.Now()
	s.fetches.Add(1)

	data, err := s.get(ctx, url)
	elapsed := time.Since(start)
	monitoring.RecordExternalServiceRequest(tracing.ServiceTiles, "fetch", elapsed, err == nil)
	if err != nil {
		s.fetchErrors.Add(1)
		monitoring.RecordError("source", "fetch")
		s.report(elapsed, err)
		s.logger.Warn("tile fetch failed", "tile", tileKey(id), "url", url, "error", err)
		return nil, err
	}
	s.report(elapsed, nil)

	monitoring.RecordTileBytes(len(data))
	s.raw.Set(id, data)
	monitoring.UpdateCacheSize(tracing.CacheTypeRaw, s.raw.Count())
	s.logger.Debug("tile fetched", "tile", tileKey(id), "bytes", len(data), "duration", elapsed)
	return data, nil
}

func (s *Source) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := core.WithRetryFactory(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}, s.opts.Client, s.opts.Retry)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return []byte{}, nil
	}

	body := io.Reader(resp.Body)
	if s.opts.MaxTileBytes > 0 {
		body = io.LimitReader(resp.Body, s.opts.MaxTileBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read tile body: %w", err)
	}
	return s.inflate(data)
}

// inflate decompresses gzip payloads and passes anything else through.
func (s *Source) inflate(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return s.checkSize(data)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer zr.Close()

	r := io.Reader(zr)
	if s.opts.MaxTileBytes > 0 {
		r = io.LimitReader(zr, s.opts.MaxTileBytes+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	return s.checkSize(out)
}

func (s *Source) checkSize(data []byte) ([]byte, error) {
	if s.opts.MaxTileBytes > 0 && int64(len(data)) > s.opts.MaxTileBytes {
		return nil, fmt.Errorf("tile larger than %d bytes", s.opts.MaxTileBytes)
	}
	return data, nil
}

func (s *Source) wait(ctx context.Context) error {
	if s.limiter.Allow() {
		return nil
	}

	start := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, tracing.ServiceTiles)),
	)
	err := s.limiter.Wait(ctx)
	waited := time.Since(start)
	monitoring.RecordRateLimitWait(tracing.ServiceTiles, waited)
	tracing.SetAttributes(ctx, attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()))
	return err
}

func (s *Source) report(latency time.Duration, err error) {
	if s.opts.Health == nil {
		return
	}
	status := monitoring.StatusConnected
	var mcpErr *core.MCPError
	switch {
	case err == nil:
	case errors.As(err, &mcpErr) && mcpErr.Code == string(core.ErrNoResults):
		// A missing tile is an answer, not an outage.
	case errors.As(err, &mcpErr) && mcpErr.Code == string(core.ErrRateLimit):
		status = monitoring.StatusDegraded
	default:
		status = monitoring.StatusError
	}
	s.opts.Health.UpdateConnection(healthName, status, latency.Milliseconds(), err)
}

// Prefetch loads ids with bounded concurrency. It returns the first
// error; loads already started run to completion.
func (s *Source) Prefetch(ctx context.Context, ids []maptile.Tile) error {
	ctx, span := tracing.StartSpan(ctx, "source.prefetch",
		trace.WithAttributes(attribute.Int("vt.prefetch.count", len(ids))),
	)
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PrefetchConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.Load(ctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prefetch failed")
		return err
	}
	return nil
}

// Cached reports whether a decoded tile is held for id.
func (s *Source) Cached(id maptile.Tile) bool {
	return s.decoded.Contains(id)
}

// CachedTiles lists the decoded tiles held, oldest first.
func (s *Source) CachedTiles() []maptile.Tile {
	return s.decoded.Keys()
}

// Evict drops id from both caches and reports whether anything was held.
func (s *Source) Evict(id maptile.Tile) bool {
	_, hadRaw := s.raw.Get(id)
	s.raw.Delete(id)
	hadDecoded := s.decoded.Remove(id)
	monitoring.UpdateCacheSize(tracing.CacheTypeDecoded, s.decoded.Len())
	return hadRaw || hadDecoded
}

// Purge empties both caches.
func (s *Source) Purge() {
	s.raw.Clear()
	s.decoded.Purge()
	monitoring.UpdateCacheSize(tracing.CacheTypeDecoded, 0)
}

// Stats returns a snapshot of cache occupancy and counters.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	handles := len(s.handles)
	s.mu.Unlock()

	return Stats{
		RawEntries:     s.raw.Count(),
		DecodedEntries: s.decoded.Len(),
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		Fetches:        s.fetches.Load(),
		FetchErrors:    s.fetchErrors.Load(),
		DecodeErrors:   s.decodeErrors.Load(),
		Handles:        handles,
	}
}

func tileKey(id maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", id.Z, id.X, id.Y)
}
