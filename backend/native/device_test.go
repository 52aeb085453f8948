package native

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rtreflect/gpucore"
)

// newNoopDevice opens a Device on the noop HAL backend.
func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	d, err := Open(&noop.API{})
	if err != nil {
		t.Fatalf("Open(noop) error = %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

// createNoopHAL creates a raw noop device and queue.
func createNoopHAL(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func TestNewDeviceNil(t *testing.T) {
	if _, err := NewDevice(nil, nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("NewDevice(nil, nil) error = %v, want ErrNilDevice", err)
	}
}

// fakeProvider is a gpucontext.DeviceProvider that may expose HAL handles.
type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p *fakeProvider) Device() gpucontext.Device   { return nil }
func (p *fakeProvider) Queue() gpucontext.Queue     { return nil }
func (p *fakeProvider) Adapter() gpucontext.Adapter { return nil }

func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

type fakeHALProvider struct{ fakeProvider }

func (p *fakeHALProvider) HalDevice() any { return p.device }
func (p *fakeHALProvider) HalQueue() any  { return p.queue }

func TestNewDeviceFromProvider(t *testing.T) {
	if _, err := NewDeviceFromProvider(&fakeProvider{}); !errors.Is(err, ErrNoHALProvider) {
		t.Errorf("plain provider error = %v, want ErrNoHALProvider", err)
	}
	if _, err := NewDeviceFromProvider(&fakeHALProvider{}); !errors.Is(err, ErrNoHALProvider) {
		t.Errorf("provider without handles error = %v, want ErrNoHALProvider", err)
	}

	dev, queue := createNoopHAL(t)
	d, err := NewDeviceFromProvider(&fakeHALProvider{fakeProvider{device: dev, queue: queue}})
	if err != nil {
		t.Fatalf("NewDeviceFromProvider() error = %v", err)
	}
	if d.Name() != "shared" {
		t.Errorf("Name() = %q, want shared", d.Name())
	}
	// A shared device must not destroy the host's device.
	d.Close()
}

func TestDeviceBufferLifecycle(t *testing.T) {
	d := newNoopDevice(t)

	if _, err := d.CreateBuffer(0, gpucore.BufferUsageStorage, "empty"); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("CreateBuffer(0) error = %v, want ErrInvalidSize", err)
	}
	id, err := d.CreateBuffer(64, gpucore.BufferUsageStorage, "lights")
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if id == gpucore.InvalidID {
		t.Fatal("CreateBuffer() returned InvalidID")
	}
	if err := d.WriteBuffer(id, 0, make([]byte, 64)); err != nil {
		t.Errorf("WriteBuffer() error = %v", err)
	}
	if err := d.WriteBuffer(id, 32, make([]byte, 64)); !errors.Is(err, ErrDataSizeMismatch) {
		t.Errorf("WriteBuffer(overflow) error = %v, want ErrDataSizeMismatch", err)
	}
	if d.LiveResources() != 1 {
		t.Errorf("LiveResources() = %d, want 1", d.LiveResources())
	}
	d.DestroyBuffer(id)
	d.DestroyBuffer(id)
	if d.LiveResources() != 0 {
		t.Errorf("LiveResources() after destroy = %d, want 0", d.LiveResources())
	}
	if err := d.WriteBuffer(id, 0, []byte{1}); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("WriteBuffer(destroyed) error = %v, want ErrResourceNotFound", err)
	}
	if _, err := d.ReadBuffer(id); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("ReadBuffer(destroyed) error = %v, want ErrResourceNotFound", err)
	}
}

func TestDeviceTextureLifecycle(t *testing.T) {
	d := newNoopDevice(t)

	if _, err := d.CreateTexture(&gpucore.TextureDesc{Width: 0, Height: 4}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("CreateTexture(0x4) error = %v, want ErrInvalidSize", err)
	}
	tex, err := d.CreateTexture(&gpucore.TextureDesc{
		Label:  "noise",
		Width:  4,
		Height: 4,
		Layers: 2,
		Format: gpucore.TextureFormatRGBA32Float,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	if tex.Layers != 2 || tex.ByteSize() != 4*4*2*16 {
		t.Errorf("texture = %+v (%d bytes), want 2 layers of 256 bytes", tex, tex.ByteSize())
	}
	if err := d.WriteTexture(tex, make([]byte, 10)); !errors.Is(err, ErrDataSizeMismatch) {
		t.Errorf("WriteTexture(short) error = %v, want ErrDataSizeMismatch", err)
	}
	if err := d.WriteTexture(tex, make([]byte, tex.ByteSize())); err != nil {
		t.Errorf("WriteTexture() error = %v", err)
	}
	d.DestroyTexture(tex.ID)
	if err := d.WriteTexture(tex, make([]byte, tex.ByteSize())); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("WriteTexture(destroyed) error = %v, want ErrResourceNotFound", err)
	}
}

func TestDeviceAccelerationStructure(t *testing.T) {
	d := newNoopDevice(t)

	if _, err := d.CreateAccelerationStructure(&gpucore.AccelerationStructureDesc{}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("CreateAccelerationStructure(empty) error = %v, want ErrInvalidSize", err)
	}
	id, err := d.CreateAccelerationStructure(&gpucore.AccelerationStructureDesc{
		Label:          "RTAS",
		Nodes:          make([]byte, 32),
		NodeCount:      1,
		Primitives:     make([]byte, 64),
		PrimitiveCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateAccelerationStructure() error = %v", err)
	}
	s, ok := d.lookupStructure(id)
	if !ok || s.nodes.size != 32 || s.tris.size != 64 {
		t.Errorf("structure = %+v, %v, want 32-byte nodes and 64-byte triangles", s, ok)
	}
	d.DestroyAccelerationStructure(id)
	if d.LiveResources() != 0 {
		t.Errorf("LiveResources() = %d, want 0", d.LiveResources())
	}
}

func TestDeviceProgram(t *testing.T) {
	d := newNoopDevice(t)

	if _, err := d.CreateProgram(&gpucore.ProgramDesc{Label: "broken", Source: "fn main( {"}); err == nil {
		t.Error("CreateProgram(invalid) error = nil, want error")
	}

	src := ShaderSources()
	id, err := d.CreateProgram(&gpucore.ProgramDesc{
		Label:      "GaussianBilateralFilter",
		Kind:       gpucore.ProgramCompute,
		Source:     src.BilateralFilter,
		EntryPoint: "main",
	})
	if err != nil {
		if isNagaLimitation(err) {
			t.Skipf("naga cannot compile the filter yet: %v", err)
		}
		t.Fatalf("CreateProgram() error = %v", err)
	}
	if _, ok := d.lookupProgram(id); !ok {
		t.Error("program not registered")
	}
	d.DestroyProgram(id)
	if d.LiveResources() != 0 {
		t.Errorf("LiveResources() = %d, want 0", d.LiveResources())
	}
}

func TestDeviceCloseReleasesEverything(t *testing.T) {
	d, err := Open(&noop.API{})
	if err != nil {
		t.Fatalf("Open(noop) error = %v", err)
	}
	if _, err := d.CreateBuffer(16, gpucore.BufferUsageStorage, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateTexture(&gpucore.TextureDesc{Width: 2, Height: 2, Format: gpucore.TextureFormatR32Float}); err != nil {
		t.Fatal(err)
	}
	d.Close()
	if d.LiveResources() != 0 {
		t.Errorf("LiveResources() after Close = %d, want 0", d.LiveResources())
	}
}
