package gpucore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Memory device errors.
var (
	// ErrResourceNotFound is returned when an ID does not name a live resource.
	ErrResourceNotFound = errors.New("gpucore: resource not found")

	// ErrInvalidSize is returned when a resource is created with a non-positive size.
	ErrInvalidSize = errors.New("gpucore: invalid resource size")

	// ErrDataSizeMismatch is returned when uploaded data does not match the resource size.
	ErrDataSizeMismatch = errors.New("gpucore: data size does not match resource")
)

// MemoryDevice is a Device that keeps every resource in host memory.
//
// It executes no programs. Replay validates a recorded stream against the
// program layouts and applies buffer updates, which makes it suitable for
// tests and for tools that only need the dispatch geometry.
//
// MemoryDevice is safe for concurrent use.
type MemoryDevice struct {
	mu sync.RWMutex

	nextID atomic.Uint64

	buffers    map[BufferID][]byte
	textures   map[TextureID]*memTexture
	structures map[AccelerationStructureID]AccelerationStructureDesc
	programs   map[ProgramID]ProgramDesc
}

type memTexture struct {
	tex  Texture
	data []byte
}

var _ Device = (*MemoryDevice)(nil)

// NewMemoryDevice creates an empty memory device.
func NewMemoryDevice() *MemoryDevice {
	d := &MemoryDevice{
		buffers:    make(map[BufferID][]byte),
		textures:   make(map[TextureID]*memTexture),
		structures: make(map[AccelerationStructureID]AccelerationStructureDesc),
		programs:   make(map[ProgramID]ProgramDesc),
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

func (d *MemoryDevice) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// CreateBuffer allocates a zeroed buffer.
func (d *MemoryDevice) CreateBuffer(size uint64, _ BufferUsage, _ string) (BufferID, error) {
	if size == 0 {
		return InvalidID, fmt.Errorf("create buffer: %w", ErrInvalidSize)
	}
	id := BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = make([]byte, size)
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *MemoryDevice) DestroyBuffer(id BufferID) {
	d.mu.Lock()
	delete(d.buffers, id)
	d.mu.Unlock()
}

// WriteBuffer copies data into a buffer at offset.
func (d *MemoryDevice) WriteBuffer(id BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("write buffer %d: %w", id, ErrResourceNotFound)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("write buffer %d: %w", id, ErrDataSizeMismatch)
	}
	copy(buf[offset:], data)
	return nil
}

// BufferData returns a copy of a buffer's contents.
func (d *MemoryDevice) BufferData(id BufferID) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	buf, ok := d.buffers[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, true
}

// CreateTexture allocates a zeroed texture.
func (d *MemoryDevice) CreateTexture(desc *TextureDesc) (Texture, error) {
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 || desc.Layers < 0 {
		return Texture{}, fmt.Errorf("create texture: %w", ErrInvalidSize)
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	tex := Texture{
		ID:     TextureID(d.newID()),
		Width:  desc.Width,
		Height: desc.Height,
		Layers: layers,
		Format: desc.Format,
	}
	d.mu.Lock()
	d.textures[tex.ID] = &memTexture{tex: tex, data: make([]byte, tex.ByteSize())}
	d.mu.Unlock()
	return tex, nil
}

// DestroyTexture releases a texture.
func (d *MemoryDevice) DestroyTexture(id TextureID) {
	d.mu.Lock()
	delete(d.textures, id)
	d.mu.Unlock()
}

// WriteTexture replaces a texture's contents.
func (d *MemoryDevice) WriteTexture(tex Texture, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[tex.ID]
	if !ok {
		return fmt.Errorf("write texture %d: %w", tex.ID, ErrResourceNotFound)
	}
	if len(data) != len(t.data) {
		return fmt.Errorf("write texture %d: %w: got %d bytes, want %d", tex.ID, ErrDataSizeMismatch, len(data), len(t.data))
	}
	copy(t.data, data)
	return nil
}

// TextureData returns a copy of a texture's contents.
func (d *MemoryDevice) TextureData(id TextureID) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.textures[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out, true
}

// CreateAccelerationStructure stores a copy of the structure description.
func (d *MemoryDevice) CreateAccelerationStructure(desc *AccelerationStructureDesc) (AccelerationStructureID, error) {
	if desc == nil || desc.NodeCount == 0 {
		return InvalidID, fmt.Errorf("create acceleration structure: %w", ErrInvalidSize)
	}
	cp := *desc
	cp.Nodes = append([]byte(nil), desc.Nodes...)
	cp.Primitives = append([]byte(nil), desc.Primitives...)
	id := AccelerationStructureID(d.newID())
	d.mu.Lock()
	d.structures[id] = cp
	d.mu.Unlock()
	return id, nil
}

// DestroyAccelerationStructure releases an acceleration structure.
func (d *MemoryDevice) DestroyAccelerationStructure(id AccelerationStructureID) {
	d.mu.Lock()
	delete(d.structures, id)
	d.mu.Unlock()
}

// AccelerationStructure returns the stored description of a structure.
func (d *MemoryDevice) AccelerationStructure(id AccelerationStructureID) (AccelerationStructureDesc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.structures[id]
	return desc, ok
}

// CreateProgram stores the program description. No compilation happens.
func (d *MemoryDevice) CreateProgram(desc *ProgramDesc) (ProgramID, error) {
	if desc == nil {
		return InvalidID, fmt.Errorf("create program: nil descriptor")
	}
	id := ProgramID(d.newID())
	d.mu.Lock()
	d.programs[id] = *desc
	d.mu.Unlock()
	return id, nil
}

// DestroyProgram releases a program.
func (d *MemoryDevice) DestroyProgram(id ProgramID) {
	d.mu.Lock()
	delete(d.programs, id)
	d.mu.Unlock()
}

// Program returns the stored program description.
func (d *MemoryDevice) Program(id ProgramID) (ProgramDesc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.programs[id]
	return desc, ok
}

// LiveResources returns the number of live resources of every kind.
func (d *MemoryDevice) LiveResources() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.buffers) + len(d.textures) + len(d.structures) + len(d.programs)
}

// Replay applies a recorded stream: buffer updates are written and every
// dispatch is validated against its program layout. Programs are not
// executed. Resources retired into r are destroyed afterwards, as a GPU
// backend does after submission. Replay returns the resolved bindings of
// each dispatch in order.
func (d *MemoryDevice) Replay(r *Recorder) ([]*DispatchBindings, error) {
	defer r.ReleaseRetired(d)
	state := NewBindingState()
	var out []*DispatchBindings
	for _, c := range r.Commands() {
		switch {
		case c.Op == OpUpdateBuffer:
			if err := d.WriteBuffer(c.Buffer, c.Offset, c.Data); err != nil {
				return out, err
			}
		case c.Op.IsDispatch():
			prog, ok := d.Program(c.Program)
			if !ok {
				return out, fmt.Errorf("replay %s: program %d: %w", c.Op, c.Program, ErrResourceNotFound)
			}
			b, err := state.Resolve(c.Program, &prog.Layout)
			if err != nil {
				return out, fmt.Errorf("replay %s (%s): %w", c.Op, prog.Label, err)
			}
			out = append(out, b)
		default:
			state.Apply(&c)
		}
	}
	return out, nil
}
