// Package accel builds and caches the scene acceleration structures the
// reflection pass traces against.
//
// A Manager owns the scene description (triangle mesh instances and lights,
// each tagged with a layer) and resolves one structure per visibility mask.
// Structures are rebuilt lazily on request when the scene changed since the
// last build or when a registered filter using that mask asked for a
// rebuild.
package accel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/gpucore"
)

// Errors returned by Manager.
var (
	// ErrInvalidLayer is returned for instances outside [0, MaxLayers).
	ErrInvalidLayer = errors.New("accel: layer out of range")

	// ErrUnknownInstance is returned when an instance ID is not registered.
	ErrUnknownInstance = errors.New("accel: unknown instance")
)

// InstanceID identifies a mesh instance in a Manager.
type InstanceID uint64

// Instance is a triangle mesh placed in the scene.
type Instance struct {
	// Label is an optional debug label.
	Label string

	// Layer is the scene layer the instance belongs to.
	Layer int

	// Transform maps object space to world space.
	Transform mgl32.Mat4

	// Vertices are object-space positions; every three form a triangle.
	Vertices []mgl32.Vec3

	// Albedo is the surface color.
	Albedo mgl32.Vec4
}

// WorldTriangles appends the instance's triangles in world space.
func (in *Instance) WorldTriangles(dst []Triangle) []Triangle {
	xf := func(v mgl32.Vec3) mgl32.Vec3 {
		return in.Transform.Mul4x1(v.Vec4(1)).Vec3()
	}
	for i := 0; i+2 < len(in.Vertices); i += 3 {
		dst = append(dst, Triangle{
			V0:     xf(in.Vertices[i]),
			V1:     xf(in.Vertices[i+1]),
			V2:     xf(in.Vertices[i+2]),
			Albedo: in.Albedo,
		})
	}
	return dst
}

type cacheEntry struct {
	id        gpucore.AccelerationStructureID
	version   uint64
	triangles int
	nodes     int
}

// Stats describes the structure cached for a mask.
type Stats struct {
	Mask      rtreflect.VisibilityMask
	Structure gpucore.AccelerationStructureID
	Triangles int
	Nodes     int
}

// Manager implements rtreflect.AccelerationStructureProvider.
//
// Manager is safe for concurrent use. It calls into the registry while
// holding its own lock; the registry never calls back into the provider
// while holding its lock.
type Manager struct {
	mu       sync.Mutex
	device   gpucore.Device
	registry *rtreflect.FilterRegistry
	leafSize int

	nextID    InstanceID
	instances map[InstanceID]*Instance
	order     []InstanceID
	lights    []rtreflect.LightDescriptor
	version   uint64

	cache   map[rtreflect.VisibilityMask]*cacheEntry
	retired gpucore.RetireList
	builds  int
}

var (
	_ rtreflect.AccelerationStructureProvider = (*Manager)(nil)
	_ rtreflect.StructureRetirer              = (*Manager)(nil)
)

// Option configures a Manager.
type Option func(*Manager)

// WithLeafSize sets the number of triangles below which BVH nodes become
// leaves.
func WithLeafSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.leafSize = n
		}
	}
}

// NewManager creates a manager that uploads structures to device. registry
// may be nil, in which case filter rebuild requests are not observed.
func NewManager(device gpucore.Device, registry *rtreflect.FilterRegistry, opts ...Option) *Manager {
	m := &Manager{
		device:    device,
		registry:  registry,
		leafSize:  DefaultLeafSize,
		instances: make(map[InstanceID]*Instance),
		cache:     make(map[rtreflect.VisibilityMask]*cacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddInstance adds a mesh instance and returns its ID. The vertex slice is
// copied.
func (m *Manager) AddInstance(in Instance) (InstanceID, error) {
	if in.Layer < 0 || in.Layer >= rtreflect.MaxLayers {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLayer, in.Layer)
	}
	in.Vertices = append([]mgl32.Vec3(nil), in.Vertices...)
	if in.Transform == (mgl32.Mat4{}) {
		in.Transform = mgl32.Ident4()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.instances[id] = &in
	m.order = append(m.order, id)
	m.version++
	return id, nil
}

// RemoveInstance removes an instance.
func (m *Manager) RemoveInstance(id InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	delete(m.instances, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.version++
	return nil
}

// SetTransform moves an instance.
func (m *Manager) SetTransform(id InstanceID, xf mgl32.Mat4) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	in.Transform = xf
	m.version++
	return nil
}

// AddLight adds a light. A light with no layers belongs to every layer.
// Lights do not affect acceleration structures.
func (m *Manager) AddLight(l rtreflect.LightDescriptor) {
	if l.Layers == rtreflect.LayerMaskNothing {
		l.Layers = rtreflect.LayerMaskEverything
	}
	m.mu.Lock()
	m.lights = append(m.lights, l)
	m.mu.Unlock()
}

// ClearLights removes every light.
func (m *Manager) ClearLights() {
	m.mu.Lock()
	m.lights = nil
	m.mu.Unlock()
}

// RequestLightList returns the lights that share a layer with mask. It
// returns nil when the scene has no lights.
func (m *Manager) RequestLightList(mask rtreflect.VisibilityMask) []rtreflect.LightDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lights) == 0 {
		return nil
	}
	out := make([]rtreflect.LightDescriptor, 0, len(m.lights))
	for _, l := range m.lights {
		if l.Layers.Intersects(mask) {
			out = append(out, l)
		}
	}
	return out
}

// RequestAccelerationStructure returns the structure covering the layers in
// mask, building it if the scene changed or a filter using mask requested a
// rebuild. It returns gpucore.InvalidID when no instance falls in mask or
// the upload fails.
func (m *Manager) RequestAccelerationStructure(mask rtreflect.VisibilityMask) gpucore.AccelerationStructureID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var obsolete []*rtreflect.Filter
	if m.registry != nil {
		obsolete = m.registry.ObsoleteFilters(mask)
	}
	entry := m.cache[mask]
	if entry != nil && entry.version == m.version && len(obsolete) == 0 {
		return entry.id
	}

	id, err := m.rebuild(mask)
	if err != nil {
		// Obsolete flags stay set so the next request retries.
		rtreflect.Logger().Warn("accel: rebuild failed", "mask", mask, "err", err)
		return id
	}

	// The manager is the rebuild owner for every filter on this mask.
	for _, f := range obsolete {
		m.registry.ClearObsolete(f)
	}
	return id
}

// rebuild replaces the cache entry for mask. The replaced structure is
// retired, since commands recorded earlier in the frame may still bind it.
// Must be called with m.mu held.
func (m *Manager) rebuild(mask rtreflect.VisibilityMask) (gpucore.AccelerationStructureID, error) {
	if old := m.cache[mask]; old != nil {
		m.retired.AccelerationStructure(old.id)
		delete(m.cache, mask)
	}

	tris := m.collect(mask)
	if len(tris) == 0 {
		rtreflect.Logger().Debug("accel: no geometry for mask", "mask", mask)
		return gpucore.InvalidID, nil
	}

	bvh := Build(tris, m.leafSize)
	id, err := m.device.CreateAccelerationStructure(&gpucore.AccelerationStructureDesc{
		Label:          fmt.Sprintf("RTAS %v", mask),
		Nodes:          bvh.PackNodes(),
		NodeCount:      len(bvh.Nodes),
		Primitives:     bvh.PackTriangles(),
		PrimitiveCount: len(bvh.Triangles),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("upload structure: %w", err)
	}
	m.cache[mask] = &cacheEntry{
		id:        id,
		version:   m.version,
		triangles: len(bvh.Triangles),
		nodes:     len(bvh.Nodes),
	}
	m.builds++
	rtreflect.Logger().Debug("accel: structure rebuilt",
		"mask", mask, "triangles", len(bvh.Triangles), "nodes", len(bvh.Nodes))
	return id, nil
}

// collect gathers the world-space triangles of every instance in mask, in
// insertion order. Must be called with m.mu held.
func (m *Manager) collect(mask rtreflect.VisibilityMask) []Triangle {
	var tris []Triangle
	for _, id := range m.order {
		in := m.instances[id]
		if mask.Has(in.Layer) {
			tris = in.WorldTriangles(tris)
		}
	}
	return tris
}

// Triangles returns the world-space triangles of the instances in mask.
func (m *Manager) Triangles(mask rtreflect.VisibilityMask) []Triangle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(mask)
}

// Builds returns the number of structures built so far.
func (m *Manager) Builds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds
}

// Stats returns the cached structure for mask, if any.
func (m *Manager) Stats(mask rtreflect.VisibilityMask) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[mask]
	if !ok {
		return Stats{}, false
	}
	return Stats{Mask: mask, Structure: e.id, Triangles: e.triangles, Nodes: e.nodes}, true
}

// RetireStructures hands the structures replaced by rebuilds to stream,
// which destroys them once its commands have executed.
func (m *Manager) RetireStructures(stream gpucore.CommandStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retired.MoveTo(stream)
}

// Retired returns the number of replaced structures not yet handed to a
// stream or released.
func (m *Manager) Retired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retired.Len()
}

// ReleaseRetired destroys the replaced structures immediately. No recorded
// but unsubmitted command may still bind them.
func (m *Manager) ReleaseRetired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retired.Release(m.device)
}

// Release destroys every cached and retired structure.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for mask, e := range m.cache {
		m.device.DestroyAccelerationStructure(e.id)
		delete(m.cache, mask)
	}
	m.retired.Release(m.device)
}
