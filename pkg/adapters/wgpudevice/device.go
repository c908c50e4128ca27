//go:build !nogpu

// Package wgpudevice runs the watermark blend kernel on a Vulkan adapter
// through the wgpu HAL.
package wgpudevice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"

	// Registers the Vulkan backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// DefaultMaxStorageBinding is the WebGPU default for a single storage
// binding. Adapters reporting a smaller buffer size lower it further.
const DefaultMaxStorageBinding = 128 << 20

// DefaultTimeout bounds one fence wait.
const DefaultTimeout = 10 * time.Second

// Device is a ComputeDevice backed by a HAL device with the blend
// pipeline compiled.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	name       string
	maxBinding uint64
	timeout    time.Duration
}

// Probe opens the best Vulkan adapter on the machine. Errors wrap
// pipeline.ErrDeviceUnavailable.
func Probe() (ports.ComputeDevice, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", pipeline.ErrDeviceUnavailable)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", pipeline.ErrDeviceUnavailable, err)
	}
	dev, err := Open(instance)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Open picks an adapter from instance, preferring discrete over
// integrated GPUs, and builds the blend pipeline. Open owns instance and
// destroys it on failure.
func Open(instance hal.Instance) (*Device, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", pipeline.ErrDeviceUnavailable)
	}
	selected := pickAdapter(adapters)

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %v", pipeline.ErrDeviceUnavailable, err)
	}

	d := &Device{
		instance:   instance,
		device:     openDev.Device,
		queue:      openDev.Queue,
		name:       describe(selected.Info.Name, selected.Info.DeviceType),
		maxBinding: DefaultMaxStorageBinding,
		timeout:    DefaultTimeout,
	}
	if limits.MaxBufferSize > 0 && limits.MaxBufferSize < d.maxBinding {
		d.maxBinding = limits.MaxBufferSize
	}
	if err := d.createPipeline(); err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %v", pipeline.ErrDeviceUnavailable, err)
	}
	return d, nil
}

func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	best := &adapters[0]
	for i := range adapters {
		if adapterRank(adapters[i].Info.DeviceType) < adapterRank(best.Info.DeviceType) {
			best = &adapters[i]
		}
	}
	return best
}

func adapterRank(t gputypes.DeviceType) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		return 1
	default:
		return 2
	}
}

func describe(name string, t gputypes.DeviceType) string {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return name + " (discrete)"
	case gputypes.DeviceTypeIntegratedGPU:
		return name + " (integrated)"
	default:
		return name
	}
}

func (d *Device) createPipeline() error {
	spirv, err := compileKernel()
	if err != nil {
		return err
	}
	d.shader, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "watermark_blend",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}

	d.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "watermark_blend_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}

	d.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "watermark_blend_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	d.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "watermark_blend_pipeline",
		Layout:  d.pipeLayout,
		Compute: hal.ComputeState{Module: d.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	return nil
}

// Name implements ports.ComputeDevice.
func (d *Device) Name() string { return d.name }

// MaxStorageBufferBytes implements ports.ComputeDevice.
func (d *Device) MaxStorageBufferBytes() uint64 { return d.maxBinding }

// SetTimeout changes the fence wait bound.
func (d *Device) SetTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = timeout
}

// Close releases the pipeline, device and instance. It is safe to call
// more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		if d.pipeline != nil {
			d.device.DestroyComputePipeline(d.pipeline)
		}
		if d.pipeLayout != nil {
			d.device.DestroyPipelineLayout(d.pipeLayout)
		}
		if d.bindLayout != nil {
			d.device.DestroyBindGroupLayout(d.bindLayout)
		}
		if d.shader != nil {
			d.device.DestroyShaderModule(d.shader)
		}
		d.device.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
	}
	d.pipeline, d.pipeLayout, d.bindLayout, d.shader = nil, nil, nil, nil
	d.device, d.queue, d.instance = nil, nil, nil
	return nil
}

func (d *Device) waitBudget(ctx context.Context) time.Duration {
	timeout := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

var _ ports.ComputeDevice = (*Device)(nil)
