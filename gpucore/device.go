package gpucore

// Device abstracts over GPU resource creation.
//
// This interface is the core abstraction that allows the reflection pass
// and its collaborators to run on multiple backends (gogpu/wgpu HAL, the
// in-memory device used by tests).
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while it is referenced by an unsubmitted
//     command stream is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type Device interface {
	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer of size bytes.
	CreateBuffer(size uint64, usage BufferUsage, label string) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// === Texture Management ===

	// CreateTexture creates a GPU texture.
	CreateTexture(desc *TextureDesc) (Texture, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// WriteTexture uploads texel data. The data must match the texture
	// format and dimensions (see Texture.ByteSize).
	WriteTexture(tex Texture, data []byte) error

	// === Acceleration Structures ===

	// CreateAccelerationStructure uploads a flattened BVH.
	CreateAccelerationStructure(desc *AccelerationStructureDesc) (AccelerationStructureID, error)

	// DestroyAccelerationStructure releases an acceleration structure.
	DestroyAccelerationStructure(id AccelerationStructureID)

	// === Programs ===

	// CreateProgram compiles a program and creates its pipeline.
	// Compilation happens once; the returned ID is used for every dispatch.
	CreateProgram(desc *ProgramDesc) (ProgramID, error)

	// DestroyProgram releases a program.
	DestroyProgram(id ProgramID)
}

// ProgramKind distinguishes how a program is dispatched.
type ProgramKind int

const (
	// ProgramCompute is a compute kernel dispatched in workgroups.
	ProgramCompute ProgramKind = iota

	// ProgramRayTracing is a ray generation program dispatched with one
	// invocation per ray.
	ProgramRayTracing
)

// String returns the string representation of ProgramKind.
func (k ProgramKind) String() string {
	switch k {
	case ProgramCompute:
		return "Compute"
	case ProgramRayTracing:
		return "RayTracing"
	default:
		return "Unknown"
	}
}

// ProgramDesc describes a program to compile.
type ProgramDesc struct {
	// Label is an optional debug label.
	Label string

	// Kind selects compute or ray tracing dispatch semantics.
	Kind ProgramKind

	// Source is the WGSL source code.
	Source string

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string

	// Layout declares the program's parameters in binding order.
	Layout ProgramLayout
}

// UniformKind is the type of a scalar or vector program parameter.
type UniformKind int

// Uniform kinds.
const (
	UniformInt UniformKind = iota
	UniformFloat
	UniformVec4
	UniformMat4
)

// Size returns the byte size of a uniform of this kind.
func (k UniformKind) Size() int {
	switch k {
	case UniformVec4:
		return 16
	case UniformMat4:
		return 64
	default:
		return 4
	}
}

// Align returns the byte alignment of a uniform of this kind in a
// WGSL uniform struct.
func (k UniformKind) Align() int {
	switch k {
	case UniformVec4, UniformMat4:
		return 16
	default:
		return 4
	}
}

// ResourceKind is the type of a bound resource.
type ResourceKind int

// Resource kinds.
const (
	// ResourceTexture is a read-only texture.
	ResourceTexture ResourceKind = iota

	// ResourceTextureRW is a texture with random write access.
	ResourceTextureRW

	// ResourceBuffer is a read-only storage buffer.
	ResourceBuffer

	// ResourceAccelerationStructure is a traceable scene representation.
	ResourceAccelerationStructure
)

// UniformSlot declares one uniform parameter.
type UniformSlot struct {
	ID   PropertyID
	Kind UniformKind
}

// ResourceSlot declares one resource parameter.
type ResourceSlot struct {
	ID   PropertyID
	Kind ResourceKind
}

// ProgramLayout declares the parameters a program consumes, in the order
// the program declares them.
//
// Uniforms are packed into a single uniform block with WGSL alignment
// rules. Resources are bound in declaration order after the uniform block.
type ProgramLayout struct {
	Uniforms  []UniformSlot
	Resources []ResourceSlot

	// WorkgroupSize is the program's workgroup size in X and Y.
	// Ray tracing programs use it to map rays onto workgroups.
	WorkgroupSize [2]uint32
}

// UniformBlockSize returns the size in bytes of the packed uniform block,
// rounded up to 16 bytes.
func (l *ProgramLayout) UniformBlockSize() int {
	offset := 0
	for _, u := range l.Uniforms {
		offset = alignUp(offset, u.Kind.Align())
		offset += u.Kind.Size()
	}
	return alignUp(offset, 16)
}

// UniformOffset returns the byte offset of the uniform with the given ID,
// or -1 if the layout does not declare it.
func (l *ProgramLayout) UniformOffset(id PropertyID) int {
	offset := 0
	for _, u := range l.Uniforms {
		offset = alignUp(offset, u.Kind.Align())
		if u.ID == id {
			return offset
		}
		offset += u.Kind.Size()
	}
	return -1
}

// HasUniform reports whether the layout declares the uniform.
func (l *ProgramLayout) HasUniform(id PropertyID) bool {
	return l.UniformOffset(id) >= 0
}

// HasResource reports whether the layout declares the resource.
func (l *ProgramLayout) HasResource(id PropertyID) bool {
	for _, r := range l.Resources {
		if r.ID == id {
			return true
		}
	}
	return false
}

func alignUp(v, align int) int {
	return (v + align - 1) / align * align
}
