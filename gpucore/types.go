package gpucore

import "fmt"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// AccelerationStructureID is an opaque handle to a traceable scene
// representation.
type AccelerationStructureID uint64

// ProgramID is an opaque handle to a compiled GPU program (a compute
// kernel or a ray generation program).
type ProgramID uint64

// InvalidID is the zero value, representing an invalid/absent resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 0

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 1

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 2

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 3
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA16Float is 16-bit RGBA, floating point.
	TextureFormatRGBA16Float TextureFormat = iota + 1

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float

	// TextureFormatR32Float is 32-bit red channel only, floating point.
	TextureFormatR32Float

	// TextureFormatDepth32Float is a 32-bit floating point depth format.
	TextureFormatDepth32Float
)

// String returns the string representation of TextureFormat.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA16Float:
		return "RGBA16Float"
	case TextureFormatRGBA32Float:
		return "RGBA32Float"
	case TextureFormatR32Float:
		return "R32Float"
	case TextureFormatDepth32Float:
		return "Depth32Float"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// Channels returns the number of channels per texel.
func (f TextureFormat) Channels() int {
	switch f {
	case TextureFormatR32Float, TextureFormatDepth32Float:
		return 1
	default:
		return 4
	}
}

// TexelSize returns the size in bytes of one texel as stored by a device.
// Half-float formats are stored widened to 32-bit floats so that kernels
// can address them as plain f32 arrays.
func (f TextureFormat) TexelSize() int {
	return f.Channels() * 4
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be read by kernels.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be written by kernels
	// (random write access).
	TextureUsageStorageBinding TextureUsage = 1 << 3
)

// TextureDesc describes a texture to create.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width is the texture width in pixels.
	Width int

	// Height is the texture height in pixels.
	Height int

	// Layers is the number of array layers. Zero means 1.
	Layers int

	// Format is the texel format.
	Format TextureFormat

	// Usage specifies how the texture will be used.
	Usage TextureUsage
}

// Texture is a handle to a device texture together with its dimensions.
// Texture values are cheap to copy; the zero value is an absent texture.
type Texture struct {
	ID     TextureID
	Width  int
	Height int
	Layers int
	Format TextureFormat
}

// Valid reports whether the texture refers to a live resource.
func (t Texture) Valid() bool {
	return t.ID != InvalidID
}

// ByteSize returns the number of bytes needed to store every texel.
func (t Texture) ByteSize() uint64 {
	layers := t.Layers
	if layers <= 0 {
		layers = 1
	}
	return uint64(t.Width) * uint64(t.Height) * uint64(layers) * uint64(t.Format.TexelSize()) //nolint:gosec // dimensions are validated positive
}

// AccelerationStructureDesc describes a flattened bounding volume hierarchy
// ready for upload. Node and primitive layouts are defined by the builder
// and the trace kernel that consumes them.
type AccelerationStructureDesc struct {
	// Label is an optional debug label.
	Label string

	// Nodes holds the packed BVH nodes.
	Nodes []byte

	// NodeCount is the number of nodes in Nodes.
	NodeCount int

	// Primitives holds the packed leaf primitives.
	Primitives []byte

	// PrimitiveCount is the number of primitives in Primitives.
	PrimitiveCount int
}
