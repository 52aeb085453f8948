package gpucore

import "github.com/go-gl/mathgl/mgl32"

// CommandStream records GPU commands for one frame.
//
// Commands execute on the GPU in the order they are recorded. No command
// blocks the calling goroutine; ordering between dispatches is guaranteed
// solely by their insertion order.
//
// Program-scoped parameters (Set* with a ProgramID) apply only to the
// named program. Global parameters apply to every program whose layout
// declares the property, unless a program-scoped value shadows them.
//
// CommandStream implementations are NOT safe for concurrent use.
type CommandStream interface {
	// SetRayTracingShaderPass selects the material pass used for hit shading.
	SetRayTracingShaderPass(program ProgramID, pass string) error

	// SetAccelerationStructure binds the structure rays are traced against.
	SetAccelerationStructure(program ProgramID, id PropertyID, as AccelerationStructureID) error

	// SetTexture binds a texture to a program slot.
	SetTexture(program ProgramID, id PropertyID, tex Texture) error

	// SetInt sets an integer program parameter.
	SetInt(program ProgramID, id PropertyID, v int32) error

	// SetFloat sets a float program parameter.
	SetFloat(program ProgramID, id PropertyID, v float32) error

	// SetGlobalBuffer binds a buffer for every program.
	SetGlobalBuffer(id PropertyID, buf BufferID) error

	// SetGlobalVector sets a vector parameter for every program.
	SetGlobalVector(id PropertyID, v mgl32.Vec4) error

	// SetGlobalMatrix sets a matrix parameter for every program.
	SetGlobalMatrix(id PropertyID, m mgl32.Mat4) error

	// SetGlobalInt sets an integer parameter for every program.
	SetGlobalInt(id PropertyID, v int32) error

	// UpdateBuffer schedules a write of data into buf at offset, ordered
	// before every dispatch recorded after it.
	UpdateBuffer(buf BufferID, offset uint64, data []byte) error

	// DispatchRays launches width*height rays with a ray tracing program.
	DispatchRays(program ProgramID, width, height uint32) error

	// DispatchCompute launches x*y*z workgroups of a compute program.
	DispatchCompute(program ProgramID, x, y, z uint32) error

	// BeginSample opens a named profiling scope.
	BeginSample(name string) error

	// EndSample closes the innermost profiling scope.
	EndSample() error

	// RetireBuffer, RetireTexture and RetireAccelerationStructure hand a
	// resource to the stream, which destroys it once the commands recorded
	// so far have executed or been discarded. Owners replacing a resource
	// mid-frame use them instead of destroying it on the Device.
	RetireBuffer(id BufferID)
	RetireTexture(id TextureID)
	RetireAccelerationStructure(id AccelerationStructureID)
}
