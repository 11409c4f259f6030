package vectortile

import (
	"fmt"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Layer message field numbers.
const (
	layerName    = 1
	layerFeature = 2
	layerKey     = 3
	layerValue   = 4
	layerExtent  = 5
	layerVersion = 15
)

const (
	// DefaultExtent is the layer extent used when none is encoded.
	DefaultExtent = 4096

	// DefaultVersion is the layer version used when none is encoded.
	DefaultVersion = 1
)

// Layer is one decoded layer of a tile. Its tables are written once
// during construction and never change, so a Layer may be shared
// between goroutines.
type Layer struct {
	name    string
	version uint32
	extent  uint32

	// keys holds every key in wire order. canon maps each wire position
	// to the first position carrying the same name, so a repeated name
	// resolves to the same attribute.
	keys     []string
	canon    []int
	keyIndex map[string]int
	dupKeys  int

	values   []tile.Value
	features [][]byte

	scale float32
	fixer RingFixer
}

func newLayer(b []byte, o *options) (*Layer, error) {
	l := &Layer{
		version:  DefaultVersion,
		extent:   DefaultExtent,
		keyIndex: make(map[string]int),
		fixer:    o.fixer,
	}

	m := message{op: "layer", buf: b}
	for m.next() {
		switch m.num {
		case layerName:
			l.name = string(m.bytes())
		case layerFeature:
			if f := m.bytes(); m.Err() == nil {
				l.features = append(l.features, f)
			}
		case layerKey:
			if k := m.bytes(); m.Err() == nil {
				l.addKey(string(k))
			}
		case layerValue:
			raw := m.bytes()
			if m.Err() != nil {
				break
			}
			v, err := decodeValue(raw)
			if err != nil {
				return nil, fmt.Errorf("layer value %d: %w", len(l.values), err)
			}
			l.values = append(l.values, v)
		case layerExtent:
			l.extent = uint32(m.varint())
		case layerVersion:
			l.version = uint32(m.varint())
		default:
			m.skip()
		}
	}
	if err := m.Err(); err != nil {
		return nil, err
	}
	if l.extent == 0 {
		return nil, schemaViolation("layer", fmt.Sprintf("zero layer extent in layer %q", l.name))
	}
	l.scale = float32(o.canonicalExtent) / float32(l.extent)
	return l, nil
}

func (l *Layer) addKey(k string) {
	pos := len(l.keys)
	l.keys = append(l.keys, k)
	if first, ok := l.keyIndex[k]; ok {
		l.canon = append(l.canon, first)
		l.dupKeys++
		return
	}
	l.keyIndex[k] = pos
	l.canon = append(l.canon, pos)
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Version returns the encoded layer version.
func (l *Layer) Version() uint32 { return l.version }

// Extent returns the layer's native coordinate span.
func (l *Layer) Extent() uint32 { return l.extent }

// FeatureCount returns the number of encoded features.
func (l *Layer) FeatureCount() int { return len(l.features) }

// Keys returns the key table in wire order, duplicates included.
func (l *Layer) Keys() []string { return append([]string(nil), l.keys...) }

// Values returns the value table in wire order.
func (l *Layer) Values() []tile.Value { return append([]tile.Value(nil), l.values...) }

// DuplicateKeys returns how many keys repeat an earlier key name.
func (l *Layer) DuplicateKeys() int { return l.dupKeys }

// Feature decodes feature i. Every call parses the feature bytes again;
// callers that need a feature repeatedly should keep the result.
func (l *Layer) Feature(i int) (tile.Feature, error) {
	f, err := l.DecodeFeature(i)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeFeature is Feature returning the concrete type.
func (l *Layer) DecodeFeature(i int) (*Feature, error) {
	if i < 0 || i >= len(l.features) {
		return nil, fmt.Errorf("%w: %d of %d in layer %q", ErrFeatureIndex, i, len(l.features), l.name)
	}
	return newFeature(l, l.features[i])
}
