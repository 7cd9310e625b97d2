//go:build windows

package webgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

var (
	_ gpu.Driver = (*driver)(nil)
	_ gpu.Buffer = (*buffer)(nil)
	_ gpu.Kernel = (*kernel)(nil)
)

type driver struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     gpu.Info

	// mu serializes queue submissions and staging transfers.
	mu sync.Mutex
}

type buffer struct {
	raw  *wgpu.Buffer
	size int
}

func (b *buffer) Size() int { return b.size }

type kernel struct {
	spec     gpu.KernelSpec
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
}

func (k *kernel) Name() string { return k.spec.Module + "/" + k.spec.Name }

// commandBuffer records into one encoder. Bind groups and params buffers
// live until the submission has been waited on.
type commandBuffer struct {
	encoder *wgpu.CommandEncoder
	groups  []*wgpu.BindGroup
	params  []*wgpu.Buffer
}

func (c *commandBuffer) release() {
	for _, g := range c.groups {
		g.Release()
	}
	for _, p := range c.params {
		p.Release()
	}
	c.groups, c.params = nil, nil
}

func newDriver(power string) (drv gpu.Driver, err error) {
	// The native library panics when it cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			drv = nil
			err = fmt.Errorf("%w: webgpu native library: %v", gpu.ErrUnavailable, r)
		}
	}()

	pref := wgpu.PowerPreferenceHighPerformance
	if power == "low" {
		pref = wgpu.PowerPreferenceLowPower
	}
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", gpu.ErrUnavailable, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: pref})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", gpu.ErrUnavailable, err)
	}
	info, err := adapter.GetInfo()
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: adapter info: %w", gpu.ErrUnavailable, err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", gpu.ErrUnavailable, err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", gpu.ErrUnavailable)
	}
	return &driver{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		info: gpu.Info{
			Kind:    core.WebGPU,
			Name:    info.Device,
			Vendor:  info.Vendor,
			Backend: "wgpu-native",
			Caps:    Caps,
		},
	}, nil
}

func (d *driver) Info() gpu.Info { return d.info }

func (d *driver) NewBuffer(size int, usage gpu.Usage) (gpu.Buffer, error) {
	var u wgpu.BufferUsage
	if usage&gpu.UsageStorage != 0 {
		u |= wgpu.BufferUsageStorage
	}
	if usage&gpu.UsageCopySrc != 0 {
		u |= wgpu.BufferUsageCopySrc
	}
	if usage&gpu.UsageCopyDst != 0 {
		u |= wgpu.BufferUsageCopyDst
	}
	if usage&gpu.UsageMapRead != 0 {
		u |= wgpu.BufferUsageMapRead
	}
	raw := d.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: u, Size: uint64(size)})
	if raw == nil {
		return nil, fmt.Errorf("webgpu: create buffer of %d bytes failed", size)
	}
	return &buffer{raw: raw, size: size}, nil
}

func (d *driver) ReleaseBuffer(b gpu.Buffer) {
	b.(*buffer).raw.Release()
}

// staging creates a mapped buffer holding data, padded to a word.
func (d *driver) staging(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64((len(data) + 3) &^ 3)
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buf.Unmap()
	return buf
}

func (d *driver) WriteBuffer(b gpu.Buffer, offset int, data []byte) error {
	dst := b.(*buffer)
	size := (len(data) + 3) &^ 3
	if offset%4 != 0 || offset+size > dst.size {
		return fmt.Errorf("webgpu: write of %d bytes at %d into %d", len(data), offset, dst.size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	src := d.staging(data, wgpu.BufferUsageCopySrc)
	defer src.Release()
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, dst.raw, uint64(offset), uint64(size))
	d.queue.Submit(encoder.Finish(nil))
	return nil
}

func (d *driver) ReadBuffer(b gpu.Buffer, offset int, dst []byte) error {
	src := b.(*buffer)
	size := uint64((len(dst) + 3) &^ 3)
	if offset%4 != 0 || offset+int(size) > src.size {
		return fmt.Errorf("webgpu: read of %d bytes at %d from %d", len(dst), offset, src.size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src.raw, uint64(offset), staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
	copy(dst, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return nil
}

func (d *driver) NewCommandBuffer() (gpu.CommandBuffer, error) {
	return &commandBuffer{encoder: d.device.CreateCommandEncoder(nil)}, nil
}

func (d *driver) Commit(cmd gpu.CommandBuffer) error {
	c := cmd.(*commandBuffer)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Submit(c.encoder.Finish(nil))
	return nil
}

// Wait blocks until the queue drains. Queue order guarantees cmd is done
// once a later transfer can be mapped.
func (d *driver) Wait(cmd gpu.CommandBuffer) error {
	c := cmd.(*commandBuffer)
	d.mu.Lock()
	defer d.mu.Unlock()

	fence := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  4,
	})
	defer fence.Release()
	src := d.staging(make([]byte, 4), wgpu.BufferUsageCopySrc)
	defer src.Release()
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, fence, 0, 4)
	d.queue.Submit(encoder.Finish(nil))
	if err := fence.MapAsync(d.device, wgpu.MapModeRead, 0, 4); err != nil {
		return fmt.Errorf("webgpu: wait: %w", err)
	}
	fence.Unmap()
	c.release()
	return nil
}

func (d *driver) Compile(module, function string) (gpu.Kernel, error) {
	spec, err := gpu.ParseKernel(module, function)
	if err != nil {
		return nil, err
	}
	code, err := Source(spec)
	if err != nil {
		return nil, err
	}
	shader := d.device.CreateShaderModuleWGSL(code)
	if shader == nil {
		return nil, fmt.Errorf("webgpu: compile %s/%s failed", module, function)
	}
	pipeline := d.device.CreateComputePipelineSimple(nil, shader, "main")
	if pipeline == nil {
		shader.Release()
		return nil, fmt.Errorf("webgpu: pipeline %s/%s failed", module, function)
	}
	return &kernel{spec: spec, shader: shader, pipeline: pipeline, layout: pipeline.GetBindGroupLayout(0)}, nil
}

func (d *driver) Dispatch(cmd gpu.CommandBuffer, k gpu.Kernel, l gpu.Launch) error {
	c := cmd.(*commandBuffer)
	kn := k.(*kernel)
	if len(l.Buffers) != Bindings(kn.spec) {
		return fmt.Errorf("webgpu: %s binds %d buffers, got %d", kn.Name(), Bindings(kn.spec), len(l.Buffers))
	}

	words := make([]byte, 4*len(l.Params))
	for i, p := range l.Params {
		binary.LittleEndian.PutUint32(words[4*i:], p)
	}
	params := d.staging(words, wgpu.BufferUsageStorage)
	c.params = append(c.params, params)

	entries := make([]wgpu.BindGroupEntry, 0, len(l.Buffers)+1)
	for i, b := range l.Buffers {
		buf := b.(*buffer)
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf.raw, 0, uint64(buf.size)))
	}
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(l.Buffers)), params, 0, uint64(max(len(words), 4))))
	group := d.device.CreateBindGroupSimple(kn.layout, entries)
	c.groups = append(c.groups, group)

	x, y := Workgroups(DispatchThreads(kn.spec, l.Threads))
	pass := c.encoder.BeginComputePass(nil)
	pass.SetPipeline(kn.pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.DispatchWorkgroups(x, y, 1)
	pass.End()
	return nil
}

func (d *driver) CopyBuffer(cmd gpu.CommandBuffer, src gpu.Buffer, srcOffset int, dst gpu.Buffer, dstOffset int, size int) error {
	if (srcOffset|dstOffset|size)%4 != 0 {
		return errors.New("webgpu: buffer copies must be 4-byte aligned")
	}
	c := cmd.(*commandBuffer)
	c.encoder.CopyBufferToBuffer(src.(*buffer).raw, uint64(srcOffset), dst.(*buffer).raw, uint64(dstOffset), uint64(size))
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
	return nil
}
