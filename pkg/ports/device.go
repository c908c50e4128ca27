package ports

import "context"

// Stamp places one atlas mask on the canvas. X0 and Y0 are the top-left
// corner of the mask in canvas pixels and may be negative.
type Stamp struct {
	X0     int32
	Y0     int32
	Offset uint32 // index of the mask's first texel in the atlas
	Width  uint32
	Height uint32
}

// BlendDispatch is one compositing submission. Pixels holds Width*Height
// little-endian packed RGBA texels and is blended in place.
type BlendDispatch struct {
	Width   int
	Height  int
	Pixels  []uint32
	Atlas   []float32
	Stamps  []Stamp
	R, G, B uint8
	Opacity uint8
}

// ComputeDevice is a GPU able to run the blend kernel.
// Implementations are not safe for concurrent Blend calls; callers
// serialize submissions.
type ComputeDevice interface {
	// Name describes the adapter, e.g. "NVIDIA GeForce RTX 4070 (discrete)".
	Name() string

	// MaxStorageBufferBytes is the largest single storage binding.
	MaxStorageBufferBytes() uint64

	// Blend runs the dispatch and waits for completion.
	Blend(ctx context.Context, d *BlendDispatch) error

	// Close releases the device.
	Close() error
}
