package vectortile

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/NERVsystems/vtdecode/pkg/tile"
)

// Geometry command ids.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// decodeGeometry runs a geometry command stream against a cursor
// starting at (0,0) and returns the rings it draws, scaled into
// canonical coordinates. The result always holds at least one ring.
func decodeGeometry(raw []byte, scale float32) (tile.GeometryCollection, error) {
	out := tile.GeometryCollection{tile.GeometryCoordinates{}}
	words := packed{op: "geometry", buf: raw}

	var x, y int32
	var cmd, count uint32
	for words.more() {
		if count == 0 {
			w, _ := words.next()
			cmd, count = w&0x7, w>>3
			if count == 0 {
				continue
			}
		}
		count--

		cur := len(out) - 1
		switch cmd {
		case cmdMoveTo, cmdLineTo:
			dx, ok := words.next()
			if !ok {
				break
			}
			dy, ok := words.next()
			if !ok {
				break
			}
			x += int32(protowire.DecodeZigZag(uint64(dx)))
			y += int32(protowire.DecodeZigZag(uint64(dy)))

			if cmd == cmdMoveTo && len(out[cur]) > 0 {
				out = append(out, tile.GeometryCoordinates{})
				cur++
			}
			out[cur] = append(out[cur], tile.Coordinate{X: scaleCoord(x, scale), Y: scaleCoord(y, scale)})
			continue
		case cmdClosePath:
			// A repeat count above one still closes the ring a single time.
			if ring := out[cur]; len(ring) > 0 {
				out[cur] = append(ring, ring[0])
			}
			count = 0
			continue
		default:
			return nil, &DecodeError{
				Kind: UnsupportedGeometryCommand,
				Op:   "geometry",
				Msg:  fmt.Sprintf("unrecognized geometry command %d", cmd),
			}
		}

		// MoveTo or LineTo ran out of parameter words.
		if words.err != nil {
			return nil, words.err
		}
		return nil, malformed("geometry", "truncated geometry parameters", nil)
	}
	if words.err != nil {
		return nil, words.err
	}
	if count > 0 {
		// the stream ended with MoveTo or LineTo repeats still pending
		return nil, malformed("geometry", "truncated geometry parameters", nil)
	}
	return out, nil
}

// scaleCoord converts a layer coordinate to canonical extent, rounding
// half away from zero and clamping to the int16 range.
func scaleCoord(v int32, scale float32) int16 {
	f := float32(v) * scale
	r := math.Round(float64(f))
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	}
	return int16(r)
}
