package vectortile

import (
	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Feature message field numbers.
const (
	featureID       = 1
	featureTags     = 2
	featureType     = 3
	featureGeometry = 4
)

// Feature is one decoded feature. Tags and geometry stay encoded until
// they are asked for. A Feature borrows its Layer's tables and must not
// be used after the Layer is released.
type Feature struct {
	layer *Layer

	id    uint64
	hasID bool
	typ   tile.FeatureType

	tags     []byte
	geometry []byte
}

func newFeature(l *Layer, b []byte) (*Feature, error) {
	f := &Feature{layer: l}
	m := message{op: "feature", buf: b}
	for m.next() {
		switch m.num {
		case featureID:
			f.id = m.varint()
			f.hasID = m.Err() == nil
		case featureTags:
			f.tags = m.bytes()
		case featureType:
			f.typ = tile.FeatureTypeFromCode(m.varint())
		case featureGeometry:
			f.geometry = m.bytes()
		default:
			m.skip()
		}
	}
	if err := m.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Type returns the declared geometry type.
func (f *Feature) Type() tile.FeatureType { return f.typ }

// ID returns the feature id, if one was encoded.
func (f *Feature) ID() (uint64, bool) { return f.id, f.hasID }

// Value returns the value of the first tag whose key is key.
func (f *Feature) Value(key string) (tile.Value, bool, error) {
	want, ok := f.layer.keyIndex[key]
	if !ok {
		return tile.Value{}, false, nil
	}

	var (
		found bool
		out   tile.Value
	)
	err := f.walkTags(func(k int, v tile.Value) bool {
		if f.layer.canon[k] == want {
			out, found = v, true
			return false
		}
		return true
	})
	if err != nil {
		return tile.Value{}, false, err
	}
	return out, found, nil
}

// Properties returns every attribute of the feature. When a key name
// appears in more than one tag the first one is kept, matching Value.
func (f *Feature) Properties() (map[string]tile.Value, error) {
	props := make(map[string]tile.Value)
	err := f.walkTags(func(k int, v tile.Value) bool {
		name := f.layer.keys[k]
		if _, seen := props[name]; !seen {
			props[name] = v
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return props, nil
}

// walkTags resolves tag pairs in order until fn returns false.
func (f *Feature) walkTags(fn func(keyPos int, v tile.Value) bool) error {
	words := packed{op: "tags", buf: f.tags}
	for words.more() {
		k, ok := words.next()
		if !ok {
			break
		}
		if !words.more() {
			if words.err != nil {
				break
			}
			return schemaViolation("tags", "uneven tag pair stream")
		}
		v, ok := words.next()
		if !ok {
			break
		}
		if int64(k) >= int64(len(f.layer.keys)) {
			return schemaViolation("tags", "key index out of range")
		}
		if int64(v) >= int64(len(f.layer.values)) {
			return schemaViolation("tags", "value index out of range")
		}
		if !fn(int(k), f.layer.values[v]) {
			return nil
		}
	}
	return words.err
}

// Geometries decodes the feature geometry in canonical coordinates.
// Polygons from version 1 layers are passed through the layer's
// RingFixer since their winding is not guaranteed.
func (f *Feature) Geometries() (tile.GeometryCollection, error) {
	g, err := decodeGeometry(f.geometry, f.layer.scale)
	if err != nil {
		return nil, err
	}
	if f.layer.version < 2 && f.typ == tile.Polygon && f.layer.fixer != nil {
		g = f.layer.fixer.FixRings(g, f.typ)
	}
	return g, nil
}
