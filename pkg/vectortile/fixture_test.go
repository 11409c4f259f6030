package vectortile

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Builders for encoded tiles used across the package tests.

type testFeature struct {
	id       *uint64
	typ      uint64
	tags     []uint32
	geometry []uint32
}

type testLayer struct {
	name     string
	version  uint32 // omitted when zero
	extent   uint32 // omitted when zero
	keys     []string
	values   [][]byte
	features []testFeature
	extra    []byte // appended verbatim, for unknown fields
}

func u64(v uint64) *uint64 { return &v }

func appendPacked(b []byte, num protowire.Number, words []uint32) []byte {
	var p []byte
	for _, w := range words {
		p = protowire.AppendVarint(p, uint64(w))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, p)
}

func encodeFeature(f testFeature) []byte {
	var b []byte
	if f.id != nil {
		b = protowire.AppendTag(b, featureID, protowire.VarintType)
		b = protowire.AppendVarint(b, *f.id)
	}
	if f.tags != nil {
		b = appendPacked(b, featureTags, f.tags)
	}
	b = protowire.AppendTag(b, featureType, protowire.VarintType)
	b = protowire.AppendVarint(b, f.typ)
	if f.geometry != nil {
		b = appendPacked(b, featureGeometry, f.geometry)
	}
	return b
}

func encodeLayer(l testLayer) []byte {
	var b []byte
	b = protowire.AppendTag(b, layerName, protowire.BytesType)
	b = protowire.AppendString(b, l.name)
	for _, f := range l.features {
		b = protowire.AppendTag(b, layerFeature, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeFeature(f))
	}
	for _, k := range l.keys {
		b = protowire.AppendTag(b, layerKey, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	for _, v := range l.values {
		b = protowire.AppendTag(b, layerValue, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	if l.extent != 0 {
		b = protowire.AppendTag(b, layerExtent, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(l.extent))
	}
	if l.version != 0 {
		b = protowire.AppendTag(b, layerVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(l.version))
	}
	return append(b, l.extra...)
}

func encodeTile(layers ...testLayer) []byte {
	var b []byte
	for _, l := range layers {
		b = protowire.AppendTag(b, tileLayer, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeLayer(l))
	}
	return b
}

func stringVal(s string) []byte {
	b := protowire.AppendTag(nil, valueString, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func floatVal(f float32) []byte {
	b := protowire.AppendTag(nil, valueFloat, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(f))
}

func doubleVal(f float64) []byte {
	b := protowire.AppendTag(nil, valueDouble, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(f))
}

func intVal(i int64) []byte {
	b := protowire.AppendTag(nil, valueInt, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(i))
}

func uintVal(u uint64) []byte {
	b := protowire.AppendTag(nil, valueUint, protowire.VarintType)
	return protowire.AppendVarint(b, u)
}

func sintVal(i int64) []byte {
	b := protowire.AppendTag(nil, valueSint, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(i))
}

func boolVal(v bool) []byte {
	b := protowire.AppendTag(nil, valueBool, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func command(id, count uint32) uint32 { return id&0x7 | count<<3 }

func zz(v int32) uint32 { return uint32(protowire.EncodeZigZag(int64(v))) }
