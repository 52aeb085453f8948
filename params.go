package rtreflect

import (
	"math"

	"github.com/gogpu/rtreflect/gpucore"
)

// RayGenParameters is the per-dispatch parameter set of the trace and
// denoise stages. It is rebuilt every frame.
type RayGenParameters struct {
	// NoiseResolution is the width of one noise layer in texels.
	NoiseResolution int32

	// NumNoiseLayers is the number of layers in the noise texture array.
	NumNoiseLayers int32

	RayBias      float32
	RayMaxLength float32

	// PixelSpreadAngle is the angular footprint of one pixel in radians.
	PixelSpreadAngle float32

	// LightPerCellCount is the number of light slots the trace kernel
	// scans per cluster cell.
	LightPerCellCount int32

	DenoiseRadius int32
	DenoiseSigma  float32
}

// NewRayGenParameters assembles the parameters for one frame.
// maxLightsPerCell is the capacity of the light cluster cells; the
// environment's value is clamped to it.
func NewRayGenParameters(env *Environment, noise gpucore.Texture, camera *Camera, maxLightsPerCell int) RayGenParameters {
	perCell := env.MaxLightsPerCell
	if maxLightsPerCell > 0 && int(perCell) > maxLightsPerCell {
		perCell = int32(maxLightsPerCell) //nolint:gosec // bounded by perCell
	}
	return RayGenParameters{
		NoiseResolution:   int32(noise.Width), //nolint:gosec // texture sizes fit in int32
		NumNoiseLayers:    int32(max(noise.Layers, 1)),
		RayBias:           env.RayBias,
		RayMaxLength:      env.RayMaxLength,
		PixelSpreadAngle:  PixelSpreadAngle(camera.FieldOfView, camera.ActualWidth, camera.ActualHeight),
		LightPerCellCount: perCell,
		DenoiseRadius:     env.DenoiseRadius,
		DenoiseSigma:      env.DenoiseSigma,
	}
}

// PixelSpreadAngle returns the angular footprint of one pixel in radians
// for a vertical field of view given in degrees:
//
//	atan(2 * tan(fov/2) / min(width, height))
//
// It returns 0 for an empty viewport.
func PixelSpreadAngle(fovDegrees float32, width, height int) float32 {
	return float32(SpreadAngle(float64(fovDegrees)*math.Pi/180, width, height))
}

// SpreadAngle is PixelSpreadAngle for a vertical field of view in radians.
func SpreadAngle(fovRadians float64, width, height int) float64 {
	m := min(width, height)
	if m <= 0 {
		return 0
	}
	return math.Atan(2 * math.Tan(fovRadians/2) / float64(m))
}
