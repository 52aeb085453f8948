package rtreflect

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect/gpucore"
)

// AccelerationStructureProvider resolves scene structures and light lists
// by visibility mask.
type AccelerationStructureProvider interface {
	// RequestAccelerationStructure returns the structure for mask, or
	// gpucore.InvalidID if none exists.
	RequestAccelerationStructure(mask VisibilityMask) gpucore.AccelerationStructureID

	// RequestLightList returns the lights selected by mask. A nil result
	// means no light list is available.
	RequestLightList(mask VisibilityMask) []LightDescriptor
}

// StructureRetirer is implemented by providers that replace structures when
// they rebuild. The pass hands the replaced structures to the frame's
// command stream after every request, so they outlive the commands already
// recorded against them.
type StructureRetirer interface {
	RetireStructures(stream gpucore.CommandStream)
}

// LightCluster is a GPU-resident spatial partition of lights, rebuilt per
// frame from a light list.
type LightCluster interface {
	// Initialize allocates the cluster's resources on device.
	Initialize(cfg ClusterConfig, device gpucore.Device) error

	// EvaluateLightClusters rebuilds the cluster for lights around camera.
	// GPU uploads are recorded into stream.
	EvaluateLightClusters(stream gpucore.CommandStream, camera *Camera, lights []LightDescriptor) error

	// Cluster returns the per-cell light index buffer.
	Cluster() gpucore.BufferID

	// LightDatas returns the packed light data buffer.
	LightDatas() gpucore.BufferID

	// MinClusterPos and MaxClusterPos return the world-space cluster bounds.
	MinClusterPos() mgl32.Vec4
	MaxClusterPos() mgl32.Vec4

	// PunctualLightCount and AreaLightCount return the number of lights of
	// each class in LightDatas. Punctual lights come first.
	PunctualLightCount() int
	AreaLightCount() int

	// ReleaseResources destroys the cluster's GPU resources.
	ReleaseResources()
}

// SharedBufferProvider exposes the current frame's read-only depth and
// normal buffers.
type SharedBufferProvider interface {
	DepthStencilBuffer() gpucore.Texture
	NormalBuffer() gpucore.Texture
}

// SkyProvider exposes the sky fallback sampled by rays that escape the scene.
type SkyProvider interface {
	SkyReflection() gpucore.Texture
}

// EnvironmentSource supplies the current ray tracing environment and the
// noise texture used to decorrelate samples.
type EnvironmentSource interface {
	// CurrentEnvironment returns the active environment, or nil if ray
	// tracing is not configured.
	CurrentEnvironment() *Environment

	// NoiseTexture returns the noise texture array. The texture width is the
	// noise resolution and its layer count the number of noise layers.
	NoiseTexture() gpucore.Texture
}

// LightType classifies a light.
type LightType int

const (
	LightTypePoint LightType = iota
	LightTypeSpot
	LightTypeDirectional
	LightTypeRectangle
	LightTypeTube
)

// String returns the string representation of LightType.
func (t LightType) String() string {
	switch t {
	case LightTypePoint:
		return "Point"
	case LightTypeSpot:
		return "Spot"
	case LightTypeDirectional:
		return "Directional"
	case LightTypeRectangle:
		return "Rectangle"
	case LightTypeTube:
		return "Tube"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// IsPunctual reports whether the light is a point or spot light.
func (t LightType) IsPunctual() bool {
	return t == LightTypePoint || t == LightTypeSpot
}

// IsArea reports whether the light is a rectangle or tube light.
func (t LightType) IsArea() bool {
	return t == LightTypeRectangle || t == LightTypeTube
}

// LightDescriptor describes one light for clustering and shading.
type LightDescriptor struct {
	Type LightType

	Position  mgl32.Vec3
	Direction mgl32.Vec3

	// Range is the distance beyond which the light contributes nothing.
	Range float32

	Color     mgl32.Vec3
	Intensity float32

	// SpotAngle is the full cone angle in degrees.
	SpotAngle float32

	// AreaSize is the width and height of a rectangle light, or the length
	// of a tube light in X.
	AreaSize mgl32.Vec2

	// Layers selects the scene layers the light belongs to.
	Layers VisibilityMask
}
