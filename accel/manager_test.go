package accel

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/gpucore"
)

// quad returns two triangles forming a unit square in the XY plane.
func quad() []mgl32.Vec3 {
	return []mgl32.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0},
		{0, 0, 0}, {1, 1, 0}, {0, 1, 0},
	}
}

func newManager(t *testing.T) (*Manager, *gpucore.MemoryDevice, *rtreflect.FilterRegistry) {
	t.Helper()
	d := gpucore.NewMemoryDevice()
	r := rtreflect.NewFilterRegistry(nil)
	m := NewManager(d, r)
	r.SetProvider(m)
	t.Cleanup(m.Release)
	return m, d, r
}

func mustAdd(t *testing.T, m *Manager, layer int) InstanceID {
	t.Helper()
	id, err := m.AddInstance(Instance{Layer: layer, Vertices: quad(), Albedo: mgl32.Vec4{1, 1, 1, 1}})
	if err != nil {
		t.Fatalf("AddInstance() error = %v", err)
	}
	return id
}

func TestManagerNoGeometry(t *testing.T) {
	m, _, r := newManager(t)
	if got := m.RequestAccelerationStructure(rtreflect.LayerMaskEverything); got != gpucore.InvalidID {
		t.Errorf("RequestAccelerationStructure() on empty scene = %v, want invalid", got)
	}
	mustAdd(t, m, 2)
	if got := m.RequestAccelerationStructure(rtreflect.LayerMask(0)); got != gpucore.InvalidID {
		t.Errorf("RequestAccelerationStructure(layer 0) = %v, want invalid", got)
	}
	if r.HasAccelerationStructure(rtreflect.LayerMask(0)) {
		t.Error("HasAccelerationStructure(layer 0) = true, want false")
	}
	if !r.HasAccelerationStructure(rtreflect.LayerMask(2)) {
		t.Error("HasAccelerationStructure(layer 2) = false, want true")
	}
}

func TestManagerCachesPerMask(t *testing.T) {
	m, d, _ := newManager(t)
	mustAdd(t, m, 0)
	mustAdd(t, m, 1)

	all := m.RequestAccelerationStructure(rtreflect.LayerMaskEverything)
	if all == gpucore.InvalidID {
		t.Fatal("RequestAccelerationStructure(Everything) = invalid")
	}
	if again := m.RequestAccelerationStructure(rtreflect.LayerMaskEverything); again != all {
		t.Errorf("second request = %v, want cached %v", again, all)
	}
	one := m.RequestAccelerationStructure(rtreflect.LayerMask(1))
	if one == gpucore.InvalidID || one == all {
		t.Errorf("RequestAccelerationStructure(layer 1) = %v, want a distinct structure", one)
	}
	if m.Builds() != 2 {
		t.Errorf("Builds() = %d, want 2", m.Builds())
	}

	desc, ok := d.AccelerationStructure(all)
	if !ok {
		t.Fatal("structure not on device")
	}
	if desc.PrimitiveCount != 4 {
		t.Errorf("PrimitiveCount = %d, want 4", desc.PrimitiveCount)
	}
	if len(desc.Nodes) != desc.NodeCount*NodeSize {
		t.Errorf("len(Nodes) = %d, want %d", len(desc.Nodes), desc.NodeCount*NodeSize)
	}
	if s, ok := m.Stats(rtreflect.LayerMask(1)); !ok || s.Triangles != 2 {
		t.Errorf("Stats(layer 1) = %+v, %v, want 2 triangles", s, ok)
	}
}

func TestManagerRebuildsOnSceneChange(t *testing.T) {
	m, d, _ := newManager(t)
	id := mustAdd(t, m, 0)
	first := m.RequestAccelerationStructure(rtreflect.LayerMask(0))

	if err := m.SetTransform(id, mgl32.Translate3D(0, 0, -5)); err != nil {
		t.Fatal(err)
	}
	second := m.RequestAccelerationStructure(rtreflect.LayerMask(0))
	if second == first {
		t.Error("structure not rebuilt after SetTransform")
	}
	if _, ok := d.AccelerationStructure(first); !ok {
		t.Error("replaced structure destroyed before release")
	}
	if n := m.ReleaseRetired(); n != 1 {
		t.Errorf("ReleaseRetired() = %d, want 1", n)
	}
	if _, ok := d.AccelerationStructure(first); ok {
		t.Error("stale structure not destroyed")
	}

	if err := m.RemoveInstance(id); err != nil {
		t.Fatal(err)
	}
	if got := m.RequestAccelerationStructure(rtreflect.LayerMask(0)); got != gpucore.InvalidID {
		t.Errorf("after RemoveInstance = %v, want invalid", got)
	}
	m.ReleaseRetired()
	if d.LiveResources() != 0 {
		t.Errorf("LiveResources() = %d, want 0", d.LiveResources())
	}
}

func TestManagerHonorsObsoleteFilters(t *testing.T) {
	m, _, r := newManager(t)
	mustAdd(t, m, 0)
	mask := rtreflect.LayerMask(0)

	f := rtreflect.NewFilter(1, mask)
	other := rtreflect.NewFilter(2, rtreflect.LayerMaskEverything)
	f.Attach(r)
	other.Attach(r)

	first := m.RequestAccelerationStructure(mask)
	r.MarkObsolete(f)
	r.MarkObsolete(other)

	second := m.RequestAccelerationStructure(mask)
	if second == first {
		t.Error("obsolete filter did not trigger a rebuild")
	}
	if r.IsObsolete(f) {
		t.Error("obsolete flag not cleared after rebuild")
	}
	if !r.IsObsolete(other) {
		t.Error("flag of a filter on another mask was cleared")
	}
	if third := m.RequestAccelerationStructure(mask); third != second {
		t.Errorf("request after clear = %v, want cached %v", third, second)
	}
}

func TestManagerRetiresReplacedStructures(t *testing.T) {
	m, d, r := newManager(t)
	mustAdd(t, m, 0)
	mask := rtreflect.LayerMask(0)
	fa := rtreflect.NewFilter(1, mask)
	fb := rtreflect.NewFilter(2, mask)
	fa.Attach(r)
	fb.Attach(r)

	// Camera A binds its structure, then a rebuild request arrives before
	// camera B is recorded into the same frame.
	rec := gpucore.NewRecorder("frame")
	idA := m.RequestAccelerationStructure(fa.Mask())
	if err := rec.SetAccelerationStructure(1, gpucore.PropertyToID("_RaytracingAccelerationStructure"), idA); err != nil {
		t.Fatal(err)
	}
	r.MarkObsolete(fb)
	idB := m.RequestAccelerationStructure(fb.Mask())
	if idB == idA {
		t.Fatal("obsolete filter did not trigger a rebuild")
	}
	m.RetireStructures(rec)

	if _, ok := d.AccelerationStructure(idA); !ok {
		t.Fatal("structure bound by a recorded command was destroyed before submission")
	}
	if m.Retired() != 0 || rec.Retired() != 1 {
		t.Errorf("manager retired = %d, stream retired = %d, want 0 and 1", m.Retired(), rec.Retired())
	}

	if _, err := d.Replay(rec); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if _, ok := d.AccelerationStructure(idA); ok {
		t.Error("replaced structure survived submission")
	}
	if _, ok := d.AccelerationStructure(idB); !ok {
		t.Error("current structure was destroyed")
	}
}

// failingDevice fails structure uploads while fail is set.
type failingDevice struct {
	*gpucore.MemoryDevice
	fail bool
}

var errUpload = errors.New("upload failed")

func (d *failingDevice) CreateAccelerationStructure(desc *gpucore.AccelerationStructureDesc) (gpucore.AccelerationStructureID, error) {
	if d.fail {
		return gpucore.InvalidID, errUpload
	}
	return d.MemoryDevice.CreateAccelerationStructure(desc)
}

func TestManagerKeepsObsoleteFlagOnFailedRebuild(t *testing.T) {
	d := &failingDevice{MemoryDevice: gpucore.NewMemoryDevice()}
	r := rtreflect.NewFilterRegistry(nil)
	m := NewManager(d, r)
	r.SetProvider(m)
	defer m.Release()
	mustAdd(t, m, 0)

	f := rtreflect.NewFilter(1, rtreflect.LayerMask(0))
	f.Attach(r)
	if m.RequestAccelerationStructure(f.Mask()) == gpucore.InvalidID {
		t.Fatal("initial build failed")
	}

	r.MarkObsolete(f)
	d.fail = true
	if got := m.RequestAccelerationStructure(f.Mask()); got != gpucore.InvalidID {
		t.Errorf("RequestAccelerationStructure() with failing upload = %v, want invalid", got)
	}
	if !r.IsObsolete(f) {
		t.Error("obsolete flag cleared although the rebuild failed")
	}

	d.fail = false
	if got := m.RequestAccelerationStructure(f.Mask()); got == gpucore.InvalidID {
		t.Error("retry after failure did not rebuild")
	}
	if r.IsObsolete(f) {
		t.Error("obsolete flag not cleared after a successful rebuild")
	}
}

func TestManagerLightList(t *testing.T) {
	m, _, _ := newManager(t)
	if got := m.RequestLightList(rtreflect.LayerMaskEverything); got != nil {
		t.Errorf("RequestLightList() with no lights = %v, want nil", got)
	}
	m.AddLight(rtreflect.LightDescriptor{Type: rtreflect.LightTypePoint, Range: 1, Layers: rtreflect.LayerMask(0)})
	m.AddLight(rtreflect.LightDescriptor{Type: rtreflect.LightTypeSpot, Range: 1, Layers: rtreflect.LayerMask(3)})
	m.AddLight(rtreflect.LightDescriptor{Type: rtreflect.LightTypeRectangle, Range: 1})

	tests := []struct {
		mask rtreflect.VisibilityMask
		want int
	}{
		{rtreflect.LayerMaskEverything, 3},
		{rtreflect.LayerMask(0), 2},
		{rtreflect.LayerMask(3), 2},
		{rtreflect.LayerMask(5), 1},
	}
	for _, tt := range tests {
		if got := m.RequestLightList(tt.mask); len(got) != tt.want {
			t.Errorf("len(RequestLightList(%v)) = %d, want %d", tt.mask, len(got), tt.want)
		}
	}
	m.ClearLights()
	if got := m.RequestLightList(rtreflect.LayerMaskEverything); got != nil {
		t.Errorf("RequestLightList() after ClearLights = %v, want nil", got)
	}
}

func TestManagerErrors(t *testing.T) {
	m, _, _ := newManager(t)
	if _, err := m.AddInstance(Instance{Layer: rtreflect.MaxLayers}); !errors.Is(err, ErrInvalidLayer) {
		t.Errorf("AddInstance(layer 32) error = %v, want ErrInvalidLayer", err)
	}
	if err := m.RemoveInstance(99); !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("RemoveInstance(99) error = %v, want ErrUnknownInstance", err)
	}
	if err := m.SetTransform(99, mgl32.Ident4()); !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("SetTransform(99) error = %v, want ErrUnknownInstance", err)
	}
}

func TestManagerTrianglesAppliesTransform(t *testing.T) {
	m, _, _ := newManager(t)
	id := mustAdd(t, m, 3)
	if err := m.SetTransform(id, mgl32.Translate3D(0, 0, -2)); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, m, 4)

	tris := m.Triangles(rtreflect.LayerMask(3))
	if len(tris) != 2 {
		t.Fatalf("len(Triangles(layer 3)) = %d, want 2", len(tris))
	}
	for i, tri := range tris {
		for _, v := range []mgl32.Vec3{tri.V0, tri.V1, tri.V2} {
			if v[2] != -2 {
				t.Errorf("triangle %d vertex %v, want z = -2", i, v)
			}
		}
	}
	if got := len(m.Triangles(rtreflect.LayerMaskEverything)); got != 4 {
		t.Errorf("len(Triangles(Everything)) = %d, want 4", got)
	}
}
