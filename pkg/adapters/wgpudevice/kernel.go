package wgpudevice

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/naga"
)

// blendKernel composites one stamp per dispatch. Coverage comes from the
// atlas, the destination is packed little-endian RGBA. The arithmetic
// mirrors the CPU compositor so both backends agree within one step.
const blendKernel = `
struct Params {
    width: u32,
    height: u32,
    x0: i32,
    y0: i32,
    offset: u32,
    mask_w: u32,
    mask_h: u32,
    ink: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> atlas: array<f32>;
@group(0) @binding(2) var<storage, read_write> pixels: array<u32>;

fn mix_channel(src: f32, dst: u32, a: f32) -> u32 {
    let v = floor(src * a + f32(dst) * (1.0 - a) + 0.5);
    return u32(clamp(v, 0.0, 255.0));
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.mask_w || gid.y >= params.mask_h) {
        return;
    }
    let px = params.x0 + i32(gid.x);
    let py = params.y0 + i32(gid.y);
    if (px < 0 || py < 0 || px >= i32(params.width) || py >= i32(params.height)) {
        return;
    }

    let coverage = atlas[params.offset + gid.y * params.mask_w + gid.x];
    let opacity = f32((params.ink >> 24u) & 0xffu);
    let a = coverage * opacity / 255.0;
    if (a <= 0.0) {
        return;
    }

    let idx = u32(py) * params.width + u32(px);
    let dst = pixels[idx];
    let r = mix_channel(f32(params.ink & 0xffu), dst & 0xffu, a);
    let g = mix_channel(f32((params.ink >> 8u) & 0xffu), (dst >> 8u) & 0xffu, a);
    let b = mix_channel(f32((params.ink >> 16u) & 0xffu), (dst >> 16u) & 0xffu, a);
    let alpha = mix_channel(255.0, (dst >> 24u) & 0xffu, a);
    pixels[idx] = r | (g << 8u) | (b << 16u) | (alpha << 24u);
}
`

const (
	workgroupSize = 8
	paramsSize    = 32
)

// compileKernel lowers the WGSL kernel to SPIR-V words.
func compileKernel() ([]uint32, error) {
	spirvBytes, err := naga.Compile(blendKernel)
	if err != nil {
		return nil, fmt.Errorf("compile blend kernel: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile blend kernel: SPIR-V length %d is not word aligned", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// stampParams is the uniform block for one dispatch.
type stampParams struct {
	Width, Height uint32
	X0, Y0        int32
	Offset        uint32
	MaskW, MaskH  uint32
	Ink           uint32 // r | g<<8 | b<<16 | opacity<<24
}

func (p stampParams) bytes() []byte {
	out := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(out[0:], p.Width)
	binary.LittleEndian.PutUint32(out[4:], p.Height)
	binary.LittleEndian.PutUint32(out[8:], uint32(p.X0))
	binary.LittleEndian.PutUint32(out[12:], uint32(p.Y0))
	binary.LittleEndian.PutUint32(out[16:], p.Offset)
	binary.LittleEndian.PutUint32(out[20:], p.MaskW)
	binary.LittleEndian.PutUint32(out[24:], p.MaskH)
	binary.LittleEndian.PutUint32(out[28:], p.Ink)
	return out
}

func packInk(r, g, b, opacity uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(opacity)<<24
}

func wordsToBytes(src []uint32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func bytesToWords(src []byte, dst []uint32) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(src[i*4:])
	}
}

func floatsToBytes(src []float32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
