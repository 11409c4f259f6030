// Package annotation holds features that are built in memory, such as
// markers and shapes added at runtime, and exposes them through the same
// interfaces as decoded vector tiles.
package annotation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Feature is an annotation feature. Its properties are plain strings.
type Feature struct {
	FeatureType tile.FeatureType
	Geometry    tile.GeometryCollection
	Attributes  map[string]string
}

var _ tile.Feature = (*Feature)(nil)

// NewFeature returns a feature of type t.
func NewFeature(t tile.FeatureType, g tile.GeometryCollection, attrs map[string]string) *Feature {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &Feature{FeatureType: t, Geometry: g, Attributes: attrs}
}

func (f *Feature) Type() tile.FeatureType { return f.FeatureType }

// Value returns the attribute stored under key as a string value.
func (f *Feature) Value(key string) (tile.Value, bool, error) {
	s, ok := f.Attributes[key]
	if !ok {
		return tile.Value{}, false, nil
	}
	return tile.StringValue(s), true, nil
}

func (f *Feature) Properties() (map[string]tile.Value, error) {
	props := make(map[string]tile.Value, len(f.Attributes))
	for k, s := range f.Attributes {
		props[k] = tile.StringValue(s)
	}
	return props, nil
}

// ID always reports no id.
func (f *Feature) ID() (uint64, bool) { return 0, false }

// Geometries returns a copy of the feature geometry.
func (f *Feature) Geometries() (tile.GeometryCollection, error) {
	return f.Geometry.Clone(), nil
}

// Layer is a named list of annotation features.
type Layer struct {
	name string

	mu       sync.RWMutex
	features []*Feature
}

var _ tile.Layer = (*Layer)(nil)

// NewLayer returns an empty layer.
func NewLayer(name string) *Layer {
	return &Layer{name: name}
}

func (l *Layer) Name() string { return l.name }

// AddFeature appends f to the layer.
func (l *Layer) AddFeature(f *Feature) {
	l.mu.Lock()
	l.features = append(l.features, f)
	l.mu.Unlock()
}

func (l *Layer) FeatureCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.features)
}

func (l *Layer) Feature(i int) (tile.Feature, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.features) {
		return nil, fmt.Errorf("annotation layer %q: feature %d out of range [0,%d)", l.name, i, len(l.features))
	}
	return l.features[i], nil
}

// Tile is the set of annotation layers covering one tile.
type Tile struct {
	mu     sync.RWMutex
	layers map[string]*Layer
}

var _ tile.Data = (*Tile)(nil)

// NewTile returns a tile without layers.
func NewTile() *Tile {
	return &Tile{layers: make(map[string]*Layer)}
}

// AddLayer adds l, replacing any layer with the same name.
func (t *Tile) AddLayer(l *Layer) {
	t.mu.Lock()
	t.layers[l.name] = l
	t.mu.Unlock()
}

// EnsureLayer returns the layer called name, creating it if needed.
func (t *Tile) EnsureLayer(name string) *Layer {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.layers[name]
	if !ok {
		l = NewLayer(name)
		t.layers[name] = l
	}
	return l
}

func (t *Tile) Layer(name string) (tile.Layer, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.layers[name]
	if !ok {
		return nil, false, nil
	}
	return l, true, nil
}

// LayerNames returns the layer names in sorted order.
func (t *Tile) LayerNames() ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.layers))
	for name := range t.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
