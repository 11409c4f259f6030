package source

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb/maptile"

	"github.com/NERVsystems/vtdecode/pkg/tile"
	"github.com/NERVsystems/vtdecode/pkg/vectortile"
)

// TileHandle is a consumer's view of one tile. Marking it Required starts
// a load; marking it Optional abandons an in-flight load but keeps data
// that already arrived. The shared fetch behind an abandoned load still
// completes and fills the source caches.
type TileHandle struct {
	src *Source
	id  maptile.Tile

	mu        sync.Mutex
	necessity vectortile.Necessity
	loading   bool
	cancel    context.CancelFunc
	done      chan struct{}
	tile      *vectortile.Tile
	err       error
}

// Tile returns the handle for id, creating an Optional one on first use.
// Every caller asking for the same id gets the same handle.
func (s *Source) Tile(id maptile.Tile) *TileHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[id]; ok {
		return h
	}
	h := &TileHandle{src: s, id: id, necessity: vectortile.Optional}
	s.handles[id] = h
	return h
}

// ID returns the tile index.
func (h *TileHandle) ID() maptile.Tile { return h.id }

// Necessity returns the handle's current necessity.
func (h *TileHandle) Necessity() vectortile.Necessity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.necessity
}

// Loaded reports whether decoded data is available.
func (h *TileHandle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tile != nil
}

// SetNecessity changes whether the tile is wanted. Required after a
// failed load starts a fresh one.
func (h *TileHandle) SetNecessity(n vectortile.Necessity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setNecessity(n)
}

// setNecessity is SetNecessity with h.mu held.
func (h *TileHandle) setNecessity(n vectortile.Necessity) {
	h.necessity = n
	switch n {
	case vectortile.Required:
		if h.tile == nil && !h.loading {
			h.start()
		}
	case vectortile.Optional:
		if h.loading {
			// The abandoned goroutine may still be finishing. A later
			// Required starts a fresh load and the stale result is dropped.
			h.cancel()
			h.loading = false
		}
	}
}

// start launches a load. h.mu must be held.
func (h *TileHandle) start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.loading, h.cancel, h.done, h.err = true, cancel, done, nil

	go func() {
		t, err := h.src.Load(ctx, h.id)
		abandoned := ctx.Err() != nil
		cancel()

		h.mu.Lock()
		defer h.mu.Unlock()
		defer close(done)
		if h.done != done {
			return
		}
		h.loading = false
		switch {
		case err == nil:
			h.tile = t
		case abandoned && errors.Is(err, context.Canceled):
			h.err = vectortile.ErrNotRequired
		default:
			h.err = err
		}
	}()
}

// Data waits for the tile. It returns vectortile.ErrNotRequired while the
// handle is Optional and nothing has been loaded, and an error wrapping
// ErrTileUnavailable when the last load failed.
func (h *TileHandle) Data(ctx context.Context) (tile.Data, error) {
	t, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Wait is Data returning the concrete tile.
func (h *TileHandle) Wait(ctx context.Context) (*vectortile.Tile, error) {
	for {
		h.mu.Lock()
		if h.tile != nil {
			t := h.tile
			h.mu.Unlock()
			return t, nil
		}
		if h.necessity != vectortile.Required {
			h.mu.Unlock()
			return nil, vectortile.ErrNotRequired
		}
		if !h.loading && h.err != nil {
			err := h.err
			h.mu.Unlock()
			return nil, err
		}
		if !h.loading {
			h.start()
		}
		done := h.done
		h.mu.Unlock()

		// A superseded load closes its channel too; go round again.
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release abandons any load and forgets the handle. Cached data stays in
// the source.
func (h *TileHandle) Release() {
	h.SetNecessity(vectortile.Optional)

	h.src.mu.Lock()
	defer h.src.mu.Unlock()
	if h.src.handles[h.id] == h {
		delete(h.src.handles, h.id)
	}
}
