//go:build !nogpu

package wgpudevice

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// Blend implements ports.ComputeDevice. Every stamp gets its own compute
// pass in one command encoder; passes run in order, so overlapping stamps
// composite the same way as on the CPU. d.Pixels is only written after the
// readback succeeds.
func (d *Device) Blend(ctx context.Context, bd *ports.BlendDispatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(bd.Stamps) == 0 {
		return nil
	}
	if len(bd.Pixels) != bd.Width*bd.Height {
		return fmt.Errorf("%w: %d texels for %dx%d dispatch", pipeline.ErrInvalidGeometry, len(bd.Pixels), bd.Width, bd.Height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("%w: device closed", pipeline.ErrDeviceUnavailable)
	}

	pixelBytes := wordsToBytes(bd.Pixels)
	atlasBytes := floatsToBytes(bd.Atlas)
	pixelSize := uint64(len(pixelBytes))
	atlasSize := uint64(len(atlasBytes))

	atlasBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "watermark_atlas", Size: atlasSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create atlas buffer: %w", err)
	}
	defer d.device.DestroyBuffer(atlasBuf)

	pixelBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "watermark_pixels", Size: pixelSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create pixel buffer: %w", err)
	}
	defer d.device.DestroyBuffer(pixelBuf)

	stagingBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "watermark_staging", Size: pixelSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(stagingBuf)

	d.queue.WriteBuffer(atlasBuf, 0, atlasBytes)
	d.queue.WriteBuffer(pixelBuf, 0, pixelBytes)

	uniforms, groups, err := d.bindStamps(bd, atlasBuf, atlasSize, pixelBuf, pixelSize)
	defer d.releaseBindings(uniforms, groups)
	if err != nil {
		return err
	}

	readback, err := d.run(ctx, bd.Stamps, groups, pixelBuf, stagingBuf, pixelSize)
	if err != nil {
		return err
	}
	bytesToWords(readback, bd.Pixels)
	return nil
}

func (d *Device) bindStamps(
	bd *ports.BlendDispatch,
	atlasBuf hal.Buffer, atlasSize uint64,
	pixelBuf hal.Buffer, pixelSize uint64,
) ([]hal.Buffer, []hal.BindGroup, error) {
	ink := packInk(bd.R, bd.G, bd.B, bd.Opacity)
	uniforms := make([]hal.Buffer, 0, len(bd.Stamps))
	groups := make([]hal.BindGroup, 0, len(bd.Stamps))

	for i, s := range bd.Stamps {
		params := stampParams{
			Width:  uint32(bd.Width),
			Height: uint32(bd.Height),
			X0:     s.X0,
			Y0:     s.Y0,
			Offset: s.Offset,
			MaskW:  s.Width,
			MaskH:  s.Height,
			Ink:    ink,
		}

		ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "watermark_params", Size: paramsSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return uniforms, groups, fmt.Errorf("create uniform buffer %d: %w", i, err)
		}
		uniforms = append(uniforms, ub)
		d.queue.WriteBuffer(ub, 0, params.bytes())

		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label: "watermark_bind", Layout: d.bindLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramsSize}},
				{Binding: 1, Resource: gputypes.BufferBinding{Buffer: atlasBuf.NativeHandle(), Offset: 0, Size: atlasSize}},
				{Binding: 2, Resource: gputypes.BufferBinding{Buffer: pixelBuf.NativeHandle(), Offset: 0, Size: pixelSize}},
			},
		})
		if err != nil {
			return uniforms, groups, fmt.Errorf("create bind group %d: %w", i, err)
		}
		groups = append(groups, bg)
	}
	return uniforms, groups, nil
}

func (d *Device) releaseBindings(uniforms []hal.Buffer, groups []hal.BindGroup) {
	for _, bg := range groups {
		if bg != nil {
			d.device.DestroyBindGroup(bg)
		}
	}
	for _, ub := range uniforms {
		if ub != nil {
			d.device.DestroyBuffer(ub)
		}
	}
}

func (d *Device) run(
	ctx context.Context, stamps []ports.Stamp, groups []hal.BindGroup,
	pixelBuf, stagingBuf hal.Buffer, pixelSize uint64,
) ([]byte, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "watermark_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("watermark_blend"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	for i, bg := range groups {
		s := stamps[i]
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "watermark_stamp"})
		pass.SetPipeline(d.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch((s.Width+workgroupSize-1)/workgroupSize, (s.Height+workgroupSize-1)/workgroupSize, 1)
		pass.End()
	}
	encoder.CopyBufferToBuffer(pixelBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: pixelSize},
	})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, d.waitBudget(ctx))
	if err != nil {
		return nil, fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("wait for GPU: timed out after %s", d.timeout)
	}

	readback := make([]byte, pixelSize)
	if err := d.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return readback, nil
}
