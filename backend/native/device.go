// Package native runs the reflection pass on a GPU through gogpu/wgpu/hal.
//
// Device implements gpucore.Device: buffers map to HAL buffers, textures
// and acceleration structures are storage buffers, and programs are WGSL
// compute kernels compiled to SPIR-V by naga when they are created. Stream
// implements gpucore.CommandStream by recording and replaying the commands
// into a HAL command encoder on Submit.
//
// Ray tracing programs are executed as compute kernels with one invocation
// per ray; there is no dependency on hardware ray tracing extensions.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rtreflect/gpucore"
)

// submitTimeout bounds the wait for a submission to complete.
const submitTimeout = 5 * time.Second

type buffer struct {
	buf  hal.Buffer
	size uint64
}

type texture struct {
	desc gpucore.Texture
	buffer
}

type structure struct {
	nodes buffer
	tris  buffer
}

type program struct {
	desc       gpucore.ProgramDesc
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// Device implements gpucore.Device over a HAL device and queue.
//
// Thread Safety: Device is safe for concurrent use. Resource maps are
// protected by a mutex; HAL calls happen outside of it.
type Device struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	// instance is set when the Device opened the HAL device itself and
	// must destroy it on Close.
	instance hal.Instance
	owned    bool
	name     string

	nextID  atomic.Uint64
	shaders *ShaderCache

	buffers    map[gpucore.BufferID]*buffer
	textures   map[gpucore.TextureID]*texture
	structures map[gpucore.AccelerationStructureID]*structure
	programs   map[gpucore.ProgramID]*program
}

var _ gpucore.Device = (*Device)(nil)

// NewDevice wraps a HAL device and queue owned by the caller.
func NewDevice(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	d := &Device{
		device:     device,
		queue:      queue,
		name:       "external",
		shaders:    defaultShaderCache,
		buffers:    make(map[gpucore.BufferID]*buffer),
		textures:   make(map[gpucore.TextureID]*texture),
		structures: make(map[gpucore.AccelerationStructureID]*structure),
		programs:   make(map[gpucore.ProgramID]*program),
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d, nil
}

// NewDeviceFromProvider adopts the HAL device of a host application. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewDeviceFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	d, err := NewDevice(device, queue)
	if err != nil {
		return nil, err
	}
	d.name = "shared"
	slogger().Info("native: using shared GPU device")
	return d, nil
}

// instanceFactory is implemented by HAL backends.
type instanceFactory interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Open creates an instance on backend, picks an adapter (discrete or
// integrated GPUs first) and opens a device the returned Device owns.
func Open(backend instanceFactory) (*Device, error) {
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	d, err := NewDevice(openDev.Device, openDev.Queue)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	d.name = selected.Info.Name
	slogger().Info("native: GPU device opened", "adapter", d.name)
	return d, nil
}

// OpenVulkan opens a device on the registered Vulkan backend.
func OpenVulkan() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	return Open(backend)
}

// Name returns the adapter name, or "external"/"shared" for adopted devices.
func (d *Device) Name() string { return d.name }

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Close destroys every live resource and, if the Device opened the HAL
// device, the device and instance.
func (d *Device) Close() {
	d.mu.Lock()
	buffers, textures, structures, programs := d.buffers, d.textures, d.structures, d.programs
	d.buffers = make(map[gpucore.BufferID]*buffer)
	d.textures = make(map[gpucore.TextureID]*texture)
	d.structures = make(map[gpucore.AccelerationStructureID]*structure)
	d.programs = make(map[gpucore.ProgramID]*program)
	d.mu.Unlock()

	for _, p := range programs {
		d.destroyProgram(p)
	}
	for _, s := range structures {
		d.device.DestroyBuffer(s.nodes.buf)
		d.device.DestroyBuffer(s.tris.buf)
	}
	for _, t := range textures {
		d.device.DestroyBuffer(t.buf)
	}
	for _, b := range buffers {
		d.device.DestroyBuffer(b.buf)
	}
	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
		d.owned = false
		d.instance = nil
	}
}

// LiveResources returns the number of live buffers, textures, structures
// and programs.
func (d *Device) LiveResources() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.buffers) + len(d.textures) + len(d.structures) + len(d.programs)
}

// === Buffer Management ===

func (d *Device) createBuffer(size uint64, usage gputypes.BufferUsage, label string) (buffer, error) {
	if size == 0 {
		return buffer{}, fmt.Errorf("%w: %q has zero size", ErrInvalidSize, label)
	}
	size = alignSize(size)
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return buffer{}, fmt.Errorf("create buffer %q: %w", label, err)
	}
	return buffer{buf: buf, size: size}, nil
}

// CreateBuffer creates a GPU buffer. Storage buffers are also copy
// sources so they can be read back.
func (d *Device) CreateBuffer(size uint64, usage gpucore.BufferUsage, label string) (gpucore.BufferID, error) {
	b, err := d.createBuffer(size, convertBufferUsage(usage)|gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst, label)
	if err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = &b
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	if ok {
		delete(d.buffers, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(b.buf)
	}
}

// WriteBuffer writes data into a buffer at offset.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.RLock()
	b, ok := d.buffers[id]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrResourceNotFound, id)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d into %d-byte buffer", ErrDataSizeMismatch, len(data), offset, b.size)
	}
	if len(data) > 0 {
		d.queue.WriteBuffer(b.buf, offset, data)
	}
	return nil
}

// ReadBuffer copies a buffer back to the host.
func (d *Device) ReadBuffer(id gpucore.BufferID) ([]byte, error) {
	d.mu.RLock()
	b, ok := d.buffers[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrResourceNotFound, id)
	}
	return d.readback(b.buf, b.size)
}

// readback copies size bytes of src into a staging buffer and reads them.
func (d *Device) readback(src hal.Buffer, size uint64) ([]byte, error) {
	staging, err := d.createBuffer(size, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst, "rtreflect_staging")
	if err != nil {
		return nil, err
	}
	defer d.device.DestroyBuffer(staging.buf)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rtreflect_readback"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(src, staging.buf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if err := d.queue.ReadBuffer(staging.buf, 0, out); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return out, nil
}

// submitAndWait submits one command buffer and blocks until it completes.
func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := d.device.Wait(fence, 1, submitTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return ErrGPUTimeout
	}
	return nil
}

// === Texture Management ===

// CreateTexture creates a texture backed by a storage buffer of f32
// channels.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return gpucore.Texture{}, fmt.Errorf("%w: texture %dx%d", ErrInvalidSize, desc.Width, desc.Height)
	}
	tex := gpucore.Texture{
		Width:  desc.Width,
		Height: desc.Height,
		Layers: max(desc.Layers, 1),
		Format: desc.Format,
	}
	b, err := d.createBuffer(tex.ByteSize(),
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst, desc.Label)
	if err != nil {
		return gpucore.Texture{}, err
	}
	tex.ID = gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[tex.ID] = &texture{desc: tex, buffer: b}
	d.mu.Unlock()
	return tex, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	if ok {
		delete(d.textures, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(t.buf)
	}
}

// WriteTexture uploads every texel of tex.
func (d *Device) WriteTexture(tex gpucore.Texture, data []byte) error {
	d.mu.RLock()
	t, ok := d.textures[tex.ID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrResourceNotFound, tex.ID)
	}
	if uint64(len(data)) != t.desc.ByteSize() {
		return fmt.Errorf("%w: got %d bytes, texture holds %d", ErrDataSizeMismatch, len(data), t.desc.ByteSize())
	}
	d.queue.WriteBuffer(t.buf, 0, data)
	return nil
}

// ReadTexture copies every texel of a texture back to the host.
func (d *Device) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrResourceNotFound, id)
	}
	data, err := d.readback(t.buf, t.size)
	if err != nil {
		return nil, err
	}
	return data[:t.desc.ByteSize()], nil
}

// === Acceleration Structures ===

// CreateAccelerationStructure uploads a flattened BVH as two storage
// buffers.
func (d *Device) CreateAccelerationStructure(desc *gpucore.AccelerationStructureDesc) (gpucore.AccelerationStructureID, error) {
	if desc.NodeCount == 0 || len(desc.Nodes) == 0 || len(desc.Primitives) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty acceleration structure", ErrInvalidSize)
	}
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	nodes, err := d.createBuffer(uint64(len(desc.Nodes)), usage, desc.Label+" nodes")
	if err != nil {
		return gpucore.InvalidID, err
	}
	tris, err := d.createBuffer(uint64(len(desc.Primitives)), usage, desc.Label+" primitives")
	if err != nil {
		d.device.DestroyBuffer(nodes.buf)
		return gpucore.InvalidID, err
	}
	d.queue.WriteBuffer(nodes.buf, 0, desc.Nodes)
	d.queue.WriteBuffer(tris.buf, 0, desc.Primitives)

	id := gpucore.AccelerationStructureID(d.newID())
	d.mu.Lock()
	d.structures[id] = &structure{nodes: nodes, tris: tris}
	d.mu.Unlock()
	return id, nil
}

// DestroyAccelerationStructure releases an acceleration structure.
func (d *Device) DestroyAccelerationStructure(id gpucore.AccelerationStructureID) {
	d.mu.Lock()
	s, ok := d.structures[id]
	if ok {
		delete(d.structures, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(s.nodes.buf)
		d.device.DestroyBuffer(s.tris.buf)
	}
}

// === Programs ===

// SetShaderCache replaces the SPIR-V cache used by CreateProgram. Devices
// share a process-wide cache by default.
func (d *Device) SetShaderCache(c *ShaderCache) {
	if c != nil {
		d.shaders = c
	}
}

// CreateProgram compiles desc.Source to SPIR-V and creates its compute
// pipeline.
func (d *Device) CreateProgram(desc *gpucore.ProgramDesc) (gpucore.ProgramID, error) {
	spirv, err := d.shaders.GetOrCompile(desc.Source)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("program %q: %w", desc.Label, err)
	}
	p := &program{desc: *desc}

	p.module, err = createShaderModule(d.device, desc.Label, spirv)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("program %q: create shader module: %w", desc.Label, err)
	}
	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_bind_layout",
		Entries: BindGroupLayoutEntries(&desc.Layout),
	})
	if err != nil {
		d.destroyProgram(p)
		return gpucore.InvalidID, fmt.Errorf("program %q: create bind group layout: %w", desc.Label, err)
	}
	p.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		d.destroyProgram(p)
		return gpucore.InvalidID, fmt.Errorf("program %q: create pipeline layout: %w", desc.Label, err)
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	p.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label + "_pipeline",
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.module, EntryPoint: entry},
	})
	if err != nil {
		d.destroyProgram(p)
		return gpucore.InvalidID, fmt.Errorf("program %q: create compute pipeline: %w", desc.Label, err)
	}

	id := gpucore.ProgramID(d.newID())
	d.mu.Lock()
	d.programs[id] = p
	d.mu.Unlock()
	slogger().Debug("native: program created", "label", desc.Label, "kind", desc.Kind, "spirvWords", len(spirv))
	return id, nil
}

// DestroyProgram releases a program.
func (d *Device) DestroyProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	p, ok := d.programs[id]
	if ok {
		delete(d.programs, id)
	}
	d.mu.Unlock()

	if ok {
		d.destroyProgram(p)
	}
}

func (d *Device) destroyProgram(p *program) {
	if p.pipeline != nil {
		d.device.DestroyComputePipeline(p.pipeline)
	}
	if p.pipeLayout != nil {
		d.device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		d.device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.module != nil {
		d.device.DestroyShaderModule(p.module)
	}
}

// === Lookup helpers for Stream ===

func (d *Device) lookupProgram(id gpucore.ProgramID) (*program, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.programs[id]
	return p, ok
}

func (d *Device) lookupBuffer(id gpucore.BufferID) (buffer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.buffers[id]
	if !ok {
		return buffer{}, false
	}
	return *b, true
}

func (d *Device) lookupTexture(id gpucore.TextureID) (buffer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.textures[id]
	if !ok {
		return buffer{}, false
	}
	return t.buffer, true
}

func (d *Device) lookupStructure(id gpucore.AccelerationStructureID) (structure, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.structures[id]
	if !ok {
		return structure{}, false
	}
	return *s, true
}
