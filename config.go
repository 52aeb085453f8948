package rtreflect

import (
	"fmt"
	"math"

	"github.com/gogpu/rtreflect/gpucore"
)

// Environment holds the ray tracing settings of the active scene.
type Environment struct {
	// RayBias offsets ray origins along the normal to avoid self-intersection.
	RayBias float32

	// RayMaxLength is the trace distance cutoff.
	RayMaxLength float32

	// DenoiseRadius is the bilateral filter radius in pixels.
	DenoiseRadius int32

	// DenoiseSigma is the Gaussian sigma of the bilateral filter.
	DenoiseSigma float32

	// MaxLightsPerCell caps the number of lights per cluster cell.
	MaxLightsPerCell int32

	// DefaultMask is used by editor views that have no filter.
	DefaultMask VisibilityMask
}

// DefaultEnvironment returns the default ray tracing environment.
func DefaultEnvironment() Environment {
	return Environment{
		RayBias:          0.001,
		RayMaxLength:     10,
		DenoiseRadius:    16,
		DenoiseSigma:     5,
		MaxLightsPerCell: 10,
		DefaultMask:      LayerMaskEverything,
	}
}

// Validate checks that the environment can drive a dispatch.
func (e *Environment) Validate() error {
	switch {
	case e.RayBias < 0 || isNaN(e.RayBias):
		return fmt.Errorf("%w: ray bias %v", ErrInvalidEnvironment, e.RayBias)
	case e.RayMaxLength <= 0 || isNaN(e.RayMaxLength):
		return fmt.Errorf("%w: ray max length %v", ErrInvalidEnvironment, e.RayMaxLength)
	case e.DenoiseRadius < 0:
		return fmt.Errorf("%w: denoise radius %d", ErrInvalidEnvironment, e.DenoiseRadius)
	case e.DenoiseSigma <= 0 || isNaN(e.DenoiseSigma):
		return fmt.Errorf("%w: denoise sigma %v", ErrInvalidEnvironment, e.DenoiseSigma)
	case e.MaxLightsPerCell <= 0:
		return fmt.Errorf("%w: max lights per cell %d", ErrInvalidEnvironment, e.MaxLightsPerCell)
	}
	return nil
}

func isNaN(f float32) bool {
	return math.IsNaN(float64(f))
}

// StaticEnvironment is an EnvironmentSource with fixed values.
type StaticEnvironment struct {
	Env   *Environment
	Noise gpucore.Texture
}

// CurrentEnvironment returns s.Env.
func (s *StaticEnvironment) CurrentEnvironment() *Environment { return s.Env }

// NoiseTexture returns s.Noise.
func (s *StaticEnvironment) NoiseTexture() gpucore.Texture { return s.Noise }

// ClusterConfig configures the light cluster grid.
type ClusterConfig struct {
	CellsX, CellsY, CellsZ int

	// ClusterRange is the half extent of the world-space box around the
	// camera that the grid covers.
	ClusterRange float32

	// MaxLightsPerCell caps the number of light indices stored per cell.
	MaxLightsPerCell int
}

// DefaultClusterConfig returns a 64x64x32 grid with a 50 unit range.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		CellsX:           64,
		CellsY:           64,
		CellsZ:           32,
		ClusterRange:     50,
		MaxLightsPerCell: 10,
	}
}

// CellCount returns the number of grid cells.
func (c ClusterConfig) CellCount() int {
	return c.CellsX * c.CellsY * c.CellsZ
}

// CellStride returns the number of uint32 words stored per cell: one count
// followed by MaxLightsPerCell indices.
func (c ClusterConfig) CellStride() int {
	return 1 + c.MaxLightsPerCell
}

// Validate checks the grid dimensions.
func (c ClusterConfig) Validate() error {
	if c.CellsX <= 0 || c.CellsY <= 0 || c.CellsZ <= 0 {
		return fmt.Errorf("%w: cells %dx%dx%d", ErrInvalidClusterConfig, c.CellsX, c.CellsY, c.CellsZ)
	}
	if c.ClusterRange <= 0 {
		return fmt.Errorf("%w: range %v", ErrInvalidClusterConfig, c.ClusterRange)
	}
	if c.MaxLightsPerCell <= 0 {
		return fmt.Errorf("%w: max lights per cell %d", ErrInvalidClusterConfig, c.MaxLightsPerCell)
	}
	return nil
}

// ShaderResources holds the resolved program handles used by the pass.
// A zero handle means the program is unavailable.
type ShaderResources struct {
	ReflectionRaytracing      gpucore.ProgramID
	ReflectionBilateralFilter gpucore.ProgramID
}

// PipelineConfig configures the reflection pass.
type PipelineConfig struct {
	// DefaultViewportWidth and DefaultViewportHeight size the intermediate
	// buffer at initialization.
	DefaultViewportWidth  int
	DefaultViewportHeight int

	Shaders      ShaderResources
	LightCluster ClusterConfig
}

// DefaultPipelineConfig returns a 1920x1080 configuration with no shaders.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DefaultViewportWidth:  1920,
		DefaultViewportHeight: 1080,
		LightCluster:          DefaultClusterConfig(),
	}
}

// Validate checks the viewport and cluster configuration. Shader handles
// are not checked; their absence is handled at render time.
func (c *PipelineConfig) Validate() error {
	if c.DefaultViewportWidth <= 0 || c.DefaultViewportHeight <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, c.DefaultViewportWidth, c.DefaultViewportHeight)
	}
	return c.LightCluster.Validate()
}
