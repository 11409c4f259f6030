package vectortile

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// message walks the fields of one encoded protobuf message. Typical use:
//
//	m := message{op: "layer", buf: b}
//	for m.next() {
//		switch m.num {
//		case 1:
//			name = string(m.bytes())
//		default:
//			m.skip()
//		}
//	}
//	if err := m.Err(); err != nil { ... }
//
// Accessors record a MalformedStream error on a wire type mismatch and
// next then stops the walk.
type message struct {
	op  string
	buf []byte
	num protowire.Number
	typ protowire.Type
	err error
}

func (m *message) next() bool {
	if m.err != nil || len(m.buf) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(m.buf)
	if n < 0 {
		m.err = parseError(m.op, n)
		return false
	}
	m.num, m.typ = num, typ
	m.buf = m.buf[n:]
	return true
}

func (m *message) expect(typ protowire.Type) bool {
	if m.err != nil {
		return false
	}
	if m.typ != typ {
		m.err = malformed(m.op, fmt.Sprintf("field %d has wire type %d, want %d", m.num, m.typ, typ), nil)
		return false
	}
	return true
}

func (m *message) varint() uint64 {
	if !m.expect(protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(m.buf)
	if n < 0 {
		m.err = parseError(m.op, n)
		return 0
	}
	m.buf = m.buf[n:]
	return v
}

// bytes returns the payload of a length-delimited field. The result
// aliases the message buffer.
func (m *message) bytes() []byte {
	if !m.expect(protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(m.buf)
	if n < 0 {
		m.err = parseError(m.op, n)
		return nil
	}
	m.buf = m.buf[n:]
	return v
}

func (m *message) fixed32() uint32 {
	if !m.expect(protowire.Fixed32Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed32(m.buf)
	if n < 0 {
		m.err = parseError(m.op, n)
		return 0
	}
	m.buf = m.buf[n:]
	return v
}

func (m *message) fixed64() uint64 {
	if !m.expect(protowire.Fixed64Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed64(m.buf)
	if n < 0 {
		m.err = parseError(m.op, n)
		return 0
	}
	m.buf = m.buf[n:]
	return v
}

func (m *message) skip() {
	if m.err != nil {
		return
	}
	n := protowire.ConsumeFieldValue(m.num, m.typ, m.buf)
	if n < 0 {
		m.err = parseError(m.op, n)
		return
	}
	m.buf = m.buf[n:]
}

func (m *message) Err() error { return m.err }

// packed iterates a packed run of varints truncated to 32 bits.
type packed struct {
	op  string
	buf []byte
	err error
}

func (p *packed) more() bool { return p.err == nil && len(p.buf) > 0 }

func (p *packed) next() (uint32, bool) {
	if !p.more() {
		return 0, false
	}
	v, n := protowire.ConsumeVarint(p.buf)
	if n < 0 {
		p.err = parseError(p.op, n)
		return 0, false
	}
	p.buf = p.buf[n:]
	return uint32(v), true
}
