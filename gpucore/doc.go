// Package gpucore provides the backend-agnostic GPU contract used by the
// reflection pass and its collaborators.
//
// This package defines the [Device] interface, which abstracts over GPU
// resource creation, and the [CommandStream] interface, which records the
// ordered per-frame commands (parameter binding and dispatches). The same
// orchestration code works with:
//   - gogpu/wgpu HAL (backend/native)
//   - the in-memory [MemoryDevice] and [Recorder] used by tests and tools
//
// # Architecture
//
//	               +-----------------+
//	               |    rtreflect    |
//	               | (ReflectionPass)|
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |     gpucore     |
//	               | Device, Stream  |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/native |          |  MemoryDevice   |
//	|  (hal.Device)   |          |    Recorder     |
//	+-----------------+          +-----------------+
//
// # Resource Management
//
// GPU resources are referenced by opaque IDs ([BufferID], [TextureID],
// [AccelerationStructureID], [ProgramID]). A Device is responsible for
// tracking the mapping between IDs and actual GPU resources. The zero ID
// ([InvalidID]) always means "absent".
//
// # Properties
//
// Shader parameters are addressed by [PropertyID] values interned once
// with [PropertyToID]. Callers resolve their IDs at package initialization
// and never look parameters up by name while recording a frame.
package gpucore
