package vectortile

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrorKind classifies a decode failure.
type ErrorKind uint8

const (
	// MalformedStream means the bytes cannot be read as protobuf fields:
	// truncation, a bad varint or a wire type mismatch.
	MalformedStream ErrorKind = iota + 1

	// SchemaViolation means the fields are well formed but reference
	// keys or values that do not exist.
	SchemaViolation

	// UnsupportedGeometryCommand means a geometry command id outside
	// MoveTo, LineTo and ClosePath.
	UnsupportedGeometryCommand
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case MalformedStream:
		return "malformed stream"
	case SchemaViolation:
		return "schema violation"
	case UnsupportedGeometryCommand:
		return "unsupported geometry command"
	default:
		return fmt.Sprintf("error kind %d", k)
	}
}

// Sentinels matched by every DecodeError of the corresponding kind.
var (
	ErrMalformedStream            = errors.New("malformed stream")
	ErrSchemaViolation            = errors.New("schema violation")
	ErrUnsupportedGeometryCommand = errors.New("unsupported geometry command")
)

var (
	// ErrFeatureIndex is returned for a feature index outside the layer.
	ErrFeatureIndex = errors.New("feature index out of range")

	// ErrNotRequired is returned by EnsureParsed while the tile is
	// marked Optional.
	ErrNotRequired = errors.New("tile not required")
)

// DecodeError describes a failure to decode part of a tile.
type DecodeError struct {
	Kind ErrorKind
	Op   string // tile, layer, feature, value, tags or geometry
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("vectortile: %s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("vectortile: %s: %s", e.Op, msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *DecodeError) Is(target error) bool {
	switch e.Kind {
	case MalformedStream:
		return target == ErrMalformedStream
	case SchemaViolation:
		return target == ErrSchemaViolation
	case UnsupportedGeometryCommand:
		return target == ErrUnsupportedGeometryCommand
	}
	return false
}

// IsKind reports whether err is a DecodeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == kind
}

// KindOf returns the kind of the first DecodeError in err's chain, or
// zero when there is none.
func KindOf(err error) ErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func malformed(op, msg string, err error) error {
	return &DecodeError{Kind: MalformedStream, Op: op, Msg: msg, Err: err}
}

func parseError(op string, n int) error {
	return malformed(op, "", protowire.ParseError(n))
}

func schemaViolation(op, msg string) error {
	return &DecodeError{Kind: SchemaViolation, Op: op, Msg: msg}
}
