package vectortile

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Value message field numbers.
const (
	valueString = 1
	valueFloat  = 2
	valueDouble = 3
	valueInt    = 4
	valueUint   = 5
	valueSint   = 6
	valueBool   = 7
)

// decodeValue decodes a Value message. The first recognized field
// determines the result; a message without one decodes to false.
func decodeValue(b []byte) (tile.Value, error) {
	m := message{op: "value", buf: b}
	for m.next() {
		var v tile.Value
		switch m.num {
		case valueString:
			v = tile.StringValue(string(m.bytes()))
		case valueFloat:
			v = tile.FloatValue(float64(math.Float32frombits(m.fixed32())))
		case valueDouble:
			v = tile.FloatValue(math.Float64frombits(m.fixed64()))
		case valueInt:
			v = tile.IntValue(int64(m.varint()))
		case valueUint:
			v = tile.UintValue(m.varint())
		case valueSint:
			v = tile.IntValue(protowire.DecodeZigZag(m.varint()))
		case valueBool:
			v = tile.BoolValue(protowire.DecodeBool(m.varint()))
		default:
			m.skip()
			continue
		}
		if err := m.Err(); err != nil {
			return tile.Value{}, err
		}
		return v, nil
	}
	if err := m.Err(); err != nil {
		return tile.Value{}, err
	}
	return tile.BoolValue(false), nil
}
