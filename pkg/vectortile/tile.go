// Package vectortile decodes protobuf vector tiles into the feature model
// of package tile.
//
// Decoding is lazy. A Tile scans its layers once, on the first call to
// EnsureParsed or Layer. A Layer keeps its features encoded and decodes
// one on every Feature call. A Feature keeps its tags and geometry
// encoded until Value, Properties or Geometries is called.
//
//	t := vectortile.New(data)
//	roads, ok, err := t.Layer("roads")
//	if err != nil || !ok {
//		...
//	}
//	for i := 0; i < roads.FeatureCount(); i++ {
//		f, err := roads.Feature(i)
//		...
//	}
package vectortile

import (
	"fmt"
	"sync"

	"github.com/NERVsystems/vtdecode/pkg/fixup"
	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Tile message field numbers.
const tileLayer = 3

// DefaultCanonicalExtent is the coordinate span decoded geometry is
// scaled into unless WithCanonicalExtent says otherwise.
const DefaultCanonicalExtent = 8192

// Necessity says whether a tile's content is currently wanted.
type Necessity uint8

const (
	Required Necessity = iota
	Optional
)

func (n Necessity) String() string {
	if n == Optional {
		return "optional"
	}
	return "required"
}

// RingFixer corrects the rings of a polygon whose winding and nesting
// cannot be trusted.
type RingFixer interface {
	FixRings(g tile.GeometryCollection, t tile.FeatureType) tile.GeometryCollection
}

// RingFixerFunc adapts a function to RingFixer.
type RingFixerFunc func(tile.GeometryCollection, tile.FeatureType) tile.GeometryCollection

// FixRings calls fn(g, t).
func (fn RingFixerFunc) FixRings(g tile.GeometryCollection, t tile.FeatureType) tile.GeometryCollection {
	return fn(g, t)
}

type options struct {
	canonicalExtent uint32
	fixer           RingFixer
	necessity       Necessity
}

// Option configures a Tile.
type Option func(*options)

// WithCanonicalExtent sets the extent geometry is scaled into. Zero
// keeps the default.
func WithCanonicalExtent(extent uint32) Option {
	return func(o *options) {
		if extent > 0 {
			o.canonicalExtent = extent
		}
	}
}

// WithRingFixer replaces the polygon fixup applied to version 1 layers.
// A nil fixer disables it.
func WithRingFixer(f RingFixer) Option {
	return func(o *options) { o.fixer = f }
}

// WithNecessity sets the initial necessity of the tile.
func WithNecessity(n Necessity) Option {
	return func(o *options) { o.necessity = n }
}

// Tile is an encoded vector tile together with its lazily built layer
// table. The byte buffer is never modified and is shared with every
// Layer and Feature decoded from it.
type Tile struct {
	data []byte
	opts options

	mu         sync.Mutex
	parsed     bool
	err        error
	layers     map[string]*Layer
	order      []*Layer
	duplicates int
}

var _ tile.Data = (*Tile)(nil)

// New returns a Tile over data. Nothing is decoded until EnsureParsed
// or Layer is called.
func New(data []byte, opts ...Option) *Tile {
	t := &Tile{
		data: data,
		opts: options{
			canonicalExtent: DefaultCanonicalExtent,
			fixer:           RingFixerFunc(fixup.Polygons),
		},
	}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// Size returns the length of the encoded tile.
func (t *Tile) Size() int { return len(t.data) }

// CanonicalExtent returns the extent geometry is scaled into.
func (t *Tile) CanonicalExtent() uint32 { return t.opts.canonicalExtent }

// SetNecessity marks the tile as wanted or not. While Optional,
// EnsureParsed does no work and returns ErrNotRequired. Layers already
// decoded stay available.
func (t *Tile) SetNecessity(n Necessity) {
	t.mu.Lock()
	t.opts.necessity = n
	t.mu.Unlock()
}

// Necessity returns the current necessity of the tile.
func (t *Tile) Necessity() Necessity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts.necessity
}

// EnsureParsed scans the tile's layers once. Concurrent callers wait for
// the first scan and all of them see its result, including its error.
// When two layers share a name the first one wins.
func (t *Tile) EnsureParsed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.parsed {
		return t.err
	}
	if t.opts.necessity == Optional {
		return ErrNotRequired
	}

	layers, order, dups, err := t.parse()
	t.parsed = true
	if err != nil {
		t.err = err
		return err
	}
	t.layers, t.order, t.duplicates = layers, order, dups
	return nil
}

func (t *Tile) parse() (map[string]*Layer, []*Layer, int, error) {
	layers := make(map[string]*Layer)
	var order []*Layer
	dups := 0

	m := message{op: "tile", buf: t.data}
	for m.next() {
		if m.num != tileLayer {
			m.skip()
			continue
		}
		raw := m.bytes()
		if m.Err() != nil {
			break
		}
		l, err := newLayer(raw, &t.opts)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("layer %d: %w", len(order)+dups, err)
		}
		if _, exists := layers[l.name]; exists {
			dups++
			continue
		}
		layers[l.name] = l
		order = append(order, l)
	}
	if err := m.Err(); err != nil {
		return nil, nil, 0, err
	}
	return layers, order, dups, nil
}

// Layer returns the layer called name.
func (t *Tile) Layer(name string) (tile.Layer, bool, error) {
	l, ok, err := t.VectorLayer(name)
	if !ok || err != nil {
		return nil, ok, err
	}
	return l, true, nil
}

// VectorLayer is Layer returning the concrete type.
func (t *Tile) VectorLayer(name string) (*Layer, bool, error) {
	if err := t.EnsureParsed(); err != nil {
		return nil, false, err
	}
	l, ok := t.layers[name]
	return l, ok, nil
}

// Layers returns the distinct layers in wire order.
func (t *Tile) Layers() ([]*Layer, error) {
	if err := t.EnsureParsed(); err != nil {
		return nil, err
	}
	return append([]*Layer(nil), t.order...), nil
}

// LayerNames returns the distinct layer names in wire order.
func (t *Tile) LayerNames() ([]string, error) {
	if err := t.EnsureParsed(); err != nil {
		return nil, err
	}
	names := make([]string, len(t.order))
	for i, l := range t.order {
		names[i] = l.name
	}
	return names, nil
}

// DuplicateLayers returns how many layers were dropped because an
// earlier layer had the same name.
func (t *Tile) DuplicateLayers() (int, error) {
	if err := t.EnsureParsed(); err != nil {
		return 0, err
	}
	return t.duplicates, nil
}
