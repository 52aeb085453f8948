package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rtreflect/gpucore"
)

// Binding numbering for a program layout:
//
//	0      uniform block (only when the layout declares uniforms)
//	1..    one binding per resource slot, in layout order; acceleration
//	       structures take two consecutive bindings (nodes, triangles)
//
// Textures are storage buffers of f32 channels.

// hasUniforms reports whether layout needs a uniform buffer at binding 0.
func hasUniforms(layout *gpucore.ProgramLayout) bool {
	return layout.UniformBlockSize() > 0
}

// BindGroupLayoutEntries returns the bind group layout entries for layout.
func BindGroupLayoutEntries(layout *gpucore.ProgramLayout) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(layout.Resources)+2)
	if hasUniforms(layout) {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}
	binding := uint32(1)
	storage := func(readOnly bool) {
		typ := gputypes.BufferBindingTypeStorage
		if readOnly {
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
		binding++
	}
	for _, r := range layout.Resources {
		switch r.Kind {
		case gpucore.ResourceAccelerationStructure:
			storage(true)
			storage(true)
		case gpucore.ResourceTextureRW:
			storage(false)
		default:
			storage(true)
		}
	}
	return entries
}

func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	return result
}

// alignSize rounds a buffer size up to the 4-byte copy alignment.
func alignSize(n uint64) uint64 {
	return (n + 3) &^ 3
}
