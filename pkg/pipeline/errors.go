package pipeline

import (
	"context"
	"errors"
)

// Sentinel errors shared by every stage. Callers wrap them with %w and
// classify with errors.Is or KindOf.
var (
	// ErrInvalidGeometry reports zero or negative canvas/glyph dimensions
	// or a non-positive space scale.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrDeviceUnavailable reports that GPU compositing was requested but
	// no usable compute device exists.
	ErrDeviceUnavailable = errors.New("gpu device unavailable")

	// ErrDecode reports an input that could not be decoded.
	ErrDecode = errors.New("decode failed")

	// ErrEncode reports an output that could not be encoded.
	ErrEncode = errors.New("encode failed")

	// ErrUnsupportedFormat reports an input or output extension the codecs
	// do not handle.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidSpec reports a watermark spec that violates its invariants.
	ErrInvalidSpec = errors.New("invalid watermark spec")
)

// ErrorKind classifies an error for batch reporting.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidGeometry
	KindDeviceUnavailable
	KindDecode
	KindEncode
	KindUnsupportedFormat
	KindInvalidSpec
	KindCanceled
	KindIO
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindInvalidGeometry:
		return "invalid-geometry"
	case KindDeviceUnavailable:
		return "device-unavailable"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindUnsupportedFormat:
		return "unsupported-format"
	case KindInvalidSpec:
		return "invalid-spec"
	case KindCanceled:
		return "canceled"
	default:
		return "io"
	}
}

// KindOf maps err onto an ErrorKind. Errors that match no sentinel are
// reported as KindIO.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrInvalidGeometry):
		return KindInvalidGeometry
	case errors.Is(err, ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrEncode):
		return KindEncode
	case errors.Is(err, ErrInvalidSpec):
		return KindInvalidSpec
	default:
		return KindIO
	}
}
