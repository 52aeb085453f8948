package rtreflect

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect/gpucore"
)

// Outcome reports what a RenderReflections call did.
type Outcome int

const (
	// OutcomeFailed means the command stream rejected a command. It is
	// always returned together with a non-nil error.
	OutcomeFailed Outcome = iota

	// OutcomeRendered means the trace and denoise dispatches were recorded.
	OutcomeRendered

	// OutcomeMissingResource means a required resource was absent and
	// nothing was recorded.
	OutcomeMissingResource

	// OutcomeNoAccelerationStructure means no structure resolved for the
	// camera and nothing was recorded.
	OutcomeNoAccelerationStructure
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "Failed"
	case OutcomeRendered:
		return "Rendered"
	case OutcomeMissingResource:
		return "MissingResource"
	case OutcomeNoAccelerationStructure:
		return "NoAccelerationStructure"
	default:
		return fmt.Sprintf("Unknown(%d)", int(o))
	}
}

// Dependencies are the collaborators a ReflectionPass is built from.
type Dependencies struct {
	// Device allocates the intermediate buffer. Required.
	Device gpucore.Device

	// Provider resolves structures and light lists by mask. Required.
	Provider AccelerationStructureProvider

	// Environment supplies the ray tracing environment and noise. Required.
	Environment EnvironmentSource

	// NewLightCluster constructs the light cluster at Initialize. Required
	// unless the WithLightCluster option is given.
	NewLightCluster func() LightCluster
}

// FrameStats describes the last RenderReflections call.
type FrameStats struct {
	Outcome          Outcome
	Mask             VisibilityMask
	Structure        gpucore.AccelerationStructureID
	TraceWidth       uint32
	TraceHeight      uint32
	DenoiseGrid      DispatchGrid
	PixelSpreadAngle float32
	PunctualLights   int
	AreaLights       int
}

// ReflectionPass renders one frame of denoised ray-traced reflections into
// a caller-supplied output buffer.
//
// A ReflectionPass is used from a single goroutine. Every RenderReflections
// call either records the full trace and denoise sequence or records
// nothing.
type ReflectionPass struct {
	device   gpucore.Device
	provider AccelerationStructureProvider
	envSrc   EnvironmentSource
	newLC    func() LightCluster
	opts     passOptions

	config   PipelineConfig
	sky      SkyProvider
	registry *FilterRegistry
	shared   SharedBufferProvider

	cluster      LightCluster
	intermediate gpucore.Texture
	initialized  bool

	last FrameStats
}

// NewReflectionPass creates a pass from its collaborators.
func NewReflectionPass(deps Dependencies, opts ...Option) (*ReflectionPass, error) {
	o := defaultPassOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.clusterFactory != nil {
		deps.NewLightCluster = o.clusterFactory
	}
	switch {
	case deps.Device == nil:
		return nil, fmt.Errorf("%w: device", ErrMissingDependency)
	case deps.Provider == nil:
		return nil, fmt.Errorf("%w: acceleration structure provider", ErrMissingDependency)
	case deps.Environment == nil:
		return nil, fmt.Errorf("%w: environment source", ErrMissingDependency)
	case deps.NewLightCluster == nil:
		return nil, fmt.Errorf("%w: light cluster", ErrMissingDependency)
	}
	return &ReflectionPass{
		device:   deps.Device,
		provider: deps.Provider,
		envSrc:   deps.Environment,
		newLC:    deps.NewLightCluster,
		opts:     o,
	}, nil
}

// Initialize allocates the intermediate buffer at the default viewport
// size and constructs the light cluster. Shader availability is not
// checked here; RenderReflections checks it every frame.
func (p *ReflectionPass) Initialize(cfg PipelineConfig, sky SkyProvider, registry *FilterRegistry, shared SharedBufferProvider) error {
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initialize reflection pass: %w", err)
	}

	tex, err := p.createIntermediate(cfg.DefaultViewportWidth, cfg.DefaultViewportHeight)
	if err != nil {
		return fmt.Errorf("initialize reflection pass: %w", err)
	}

	cluster := p.newLC()
	if cluster == nil {
		p.device.DestroyTexture(tex.ID)
		return fmt.Errorf("initialize reflection pass: %w: light cluster factory returned nil", ErrMissingDependency)
	}
	if err := cluster.Initialize(cfg.LightCluster, p.device); err != nil {
		p.device.DestroyTexture(tex.ID)
		return fmt.Errorf("initialize light cluster: %w", err)
	}

	p.config = cfg
	p.sky = sky
	p.registry = registry
	p.shared = shared
	p.cluster = cluster
	p.intermediate = tex
	p.initialized = true

	Logger().Info("rtreflect: reflection pass initialized",
		"viewport", fmt.Sprintf("%dx%d", tex.Width, tex.Height),
		"cells", cfg.LightCluster.CellCount())
	return nil
}

// Release destroys the light cluster resources and the intermediate buffer.
func (p *ReflectionPass) Release() {
	if !p.initialized {
		return
	}
	p.cluster.ReleaseResources()
	p.cluster = nil
	p.device.DestroyTexture(p.intermediate.ID)
	p.intermediate = gpucore.Texture{}
	p.initialized = false
}

// LastFrame returns the statistics of the last RenderReflections call.
func (p *ReflectionPass) LastFrame() FrameStats {
	return p.last
}

func (p *ReflectionPass) createIntermediate(width, height int) (gpucore.Texture, error) {
	return p.device.CreateTexture(&gpucore.TextureDesc{
		Label:  "IntermediateReflectionBuffer",
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA16Float,
		Usage:  gpucore.TextureUsageTextureBinding | gpucore.TextureUsageStorageBinding,
	})
}

// ensureIntermediate grows the intermediate buffer to cover a viewport. The
// old buffer is retired into stream, where earlier cameras may have bound it.
func (p *ReflectionPass) ensureIntermediate(stream gpucore.CommandStream, width, height int) error {
	if width <= p.intermediate.Width && height <= p.intermediate.Height {
		return nil
	}
	tex, err := p.createIntermediate(max(width, p.intermediate.Width), max(height, p.intermediate.Height))
	if err != nil {
		return fmt.Errorf("resize intermediate buffer: %w", err)
	}
	stream.RetireTexture(p.intermediate.ID)
	p.intermediate = tex
	Logger().Debug("rtreflect: intermediate buffer resized", "width", tex.Width, "height", tex.Height)
	return nil
}

// frameResources are the resources checked before anything is recorded.
type frameResources struct {
	env    *Environment
	noise  gpucore.Texture
	trace  gpucore.ProgramID
	filter gpucore.ProgramID
	sky    gpucore.Texture
	depth  gpucore.Texture
	normal gpucore.Texture
}

// gatherResources returns the frame's resources and the name of the first
// missing one.
func (p *ReflectionPass) gatherResources() (frameResources, string) {
	r := frameResources{
		env:    p.envSrc.CurrentEnvironment(),
		noise:  p.envSrc.NoiseTexture(),
		trace:  p.config.Shaders.ReflectionRaytracing,
		filter: p.config.Shaders.ReflectionBilateralFilter,
	}
	switch {
	case r.env == nil:
		return r, "environment"
	case r.env.Validate() != nil:
		return r, "valid environment"
	case !r.noise.Valid():
		return r, "noise texture"
	case r.filter == gpucore.InvalidID:
		return r, "bilateral filter program"
	case r.trace == gpucore.InvalidID:
		return r, "reflection trace program"
	case p.sky == nil:
		return r, "sky provider"
	case p.shared == nil:
		return r, "shared buffers"
	}
	r.sky = p.sky.SkyReflection()
	r.depth = p.shared.DepthStencilBuffer()
	r.normal = p.shared.NormalBuffer()
	switch {
	case !r.sky.Valid():
		return r, "sky texture"
	case !r.depth.Valid():
		return r, "depth buffer"
	case !r.normal.Valid():
		return r, "normal buffer"
	}
	return r, ""
}

// selectMask returns the mask used for camera: the mask of its registered
// filter, or the default mask for editor views.
func (p *ReflectionPass) selectMask(camera *Camera, env *Environment) (VisibilityMask, bool) {
	if p.registry != nil {
		if f, ok := p.registry.FilterFor(camera.ID); ok {
			return f.Mask(), true
		}
	}
	if camera.Type.IsEditorView() {
		return env.DefaultMask, true
	}
	return 0, false
}

// RenderReflections records the reflection trace and denoise for camera
// into stream, writing output.
//
// Missing resources and unresolved acceleration structures are not errors:
// the call records nothing and reports the reason through the Outcome.
// A non-nil error means the stream rejected a command.
func (p *ReflectionPass) RenderReflections(camera *Camera, stream gpucore.CommandStream, output gpucore.Texture) (Outcome, error) {
	if !p.initialized {
		return OutcomeFailed, ErrNotInitialized
	}
	p.last = FrameStats{}

	res, missing := p.gatherResources()
	if missing == "" && (camera == nil || camera.ActualWidth <= 0 || camera.ActualHeight <= 0) {
		missing = "camera viewport"
	}
	if missing == "" && !output.Valid() {
		missing = "output buffer"
	}
	if missing != "" {
		Logger().Debug("rtreflect: reflections skipped", "missing", missing)
		return p.skip(OutcomeMissingResource), nil
	}

	mask, ok := p.selectMask(camera, res.env)
	var as gpucore.AccelerationStructureID
	var lights []LightDescriptor
	if ok {
		as = p.provider.RequestAccelerationStructure(mask)
		lights = p.provider.RequestLightList(mask)
		if r, isRetirer := p.provider.(StructureRetirer); isRetirer {
			r.RetireStructures(stream)
		}
	}
	if as == gpucore.InvalidID {
		Logger().Debug("rtreflect: reflections skipped, no acceleration structure",
			"camera", camera.ID, "type", camera.Type, "mask", mask)
		return p.skip(OutcomeNoAccelerationStructure), nil
	}
	p.last.Mask = mask
	p.last.Structure = as

	if err := p.ensureIntermediate(stream, camera.ActualWidth, camera.ActualHeight); err != nil {
		return OutcomeFailed, err
	}

	if err := p.cluster.EvaluateLightClusters(stream, camera, lights); err != nil {
		return OutcomeFailed, fmt.Errorf("evaluate light clusters: %w", err)
	}

	params := NewRayGenParameters(res.env, res.noise, camera, p.config.LightCluster.MaxLightsPerCell)
	if err := p.trace(stream, camera, &res, as, &params); err != nil {
		return OutcomeFailed, fmt.Errorf("reflection trace: %w", err)
	}
	grid, err := p.denoise(stream, &res, output, &params)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("reflection denoise: %w", err)
	}

	p.last.Outcome = OutcomeRendered
	p.last.TraceWidth = uint32(camera.ActualWidth)   //nolint:gosec // validated positive
	p.last.TraceHeight = uint32(camera.ActualHeight) //nolint:gosec // validated positive
	p.last.DenoiseGrid = grid
	p.last.PixelSpreadAngle = params.PixelSpreadAngle
	p.last.PunctualLights = p.cluster.PunctualLightCount()
	p.last.AreaLights = p.cluster.AreaLightCount()

	Logger().Debug("rtreflect: reflections recorded",
		"camera", camera.ID, "mask", mask,
		"rays", fmt.Sprintf("%dx%d", camera.ActualWidth, camera.ActualHeight),
		"denoise", grid.String(), "spread", params.PixelSpreadAngle)
	return OutcomeRendered, nil
}

func (p *ReflectionPass) skip(o Outcome) Outcome {
	p.last.Outcome = o
	return o
}

// trace binds the ray generation parameters and dispatches one ray per
// viewport pixel into the intermediate buffer.
func (p *ReflectionPass) trace(s gpucore.CommandStream, camera *Camera, res *frameResources, as gpucore.AccelerationStructureID, params *RayGenParameters) error {
	prog := res.trace
	lc := p.cluster
	return errors.Join(
		s.SetRayTracingShaderPass(prog, p.opts.shaderPass),
		s.SetAccelerationStructure(prog, IDAccelerationStructure, as),

		// Noise decorrelates samples per pixel and per frame.
		s.SetTexture(prog, IDNoiseTexture, res.noise),
		s.SetInt(prog, IDNoiseResolution, params.NoiseResolution),
		s.SetInt(prog, IDNumNoiseLayers, params.NumNoiseLayers),
		s.SetGlobalInt(IDFrameIndex, int32(camera.FrameIndex%(1<<31))), //nolint:gosec // reduced modulo 2^31

		s.SetFloat(prog, IDRayBias, params.RayBias),
		s.SetFloat(prog, IDRayMaxLength, params.RayMaxLength),
		s.SetFloat(prog, IDPixelSpreadAngle, params.PixelSpreadAngle),

		s.SetTexture(prog, IDLightingTextureRW, p.intermediate),
		s.SetInt(prog, IDIntermediateWidth, int32(p.intermediate.Width)), //nolint:gosec // texture sizes fit in int32
		s.SetTexture(prog, IDDepthTexture, res.depth),
		s.SetTexture(prog, IDNormalTexture, res.normal),

		s.SetGlobalMatrix(IDInvViewProjMatrix, camera.InverseViewProjection()),
		s.SetGlobalVector(IDWorldSpaceCamera, camera.Position.Vec4(1)),
		s.SetGlobalVector(IDScreenSize, camera.ScreenSize()),

		s.SetGlobalBuffer(IDRaytracingLightCluster, lc.Cluster()),
		s.SetGlobalBuffer(IDLightDatasRT, lc.LightDatas()),
		s.SetGlobalVector(IDMinClusterPos, lc.MinClusterPos()),
		s.SetGlobalVector(IDMaxClusterPos, lc.MaxClusterPos()),
		s.SetGlobalInt(IDLightPerCellCount, params.LightPerCellCount),
		s.SetGlobalInt(IDPunctualLightCountRT, int32(lc.PunctualLightCount())), //nolint:gosec // light counts fit in int32
		s.SetGlobalInt(IDAreaLightCountRT, int32(lc.AreaLightCount())),         //nolint:gosec // light counts fit in int32

		// Rays that escape the scene sample the sky.
		s.SetTexture(prog, IDSkyTexture, res.sky),
		s.SetGlobalVector(IDSkyTextureSize, textureSize(res.sky)),

		s.DispatchRays(prog, uint32(camera.ActualWidth), uint32(camera.ActualHeight)), //nolint:gosec // validated positive
	)
}

// denoise filters the intermediate buffer into output with depth and normal
// as edge-stopping guides.
func (p *ReflectionPass) denoise(s gpucore.CommandStream, res *frameResources, output gpucore.Texture, params *RayGenParameters) (DispatchGrid, error) {
	prog := res.filter
	grid := DenoiseDispatch(output.Width, output.Height)
	err := errors.Join(
		s.BeginSample(FilterReflectionSample),
		s.SetInt(prog, IDDenoiseRadius, params.DenoiseRadius),
		s.SetFloat(prog, IDGaussianSigma, params.DenoiseSigma),
		s.SetTexture(prog, IDSourceTexture, p.intermediate),
		s.SetInt(prog, IDSourceWidth, int32(p.intermediate.Width)), //nolint:gosec // texture sizes fit in int32
		s.SetTexture(prog, IDDepthTexture, res.depth),
		s.SetTexture(prog, IDNormalTexture, res.normal),
		s.SetTexture(prog, IDOutputTexture, output),
		s.SetInt(prog, IDOutputWidth, int32(output.Width)),   //nolint:gosec // texture sizes fit in int32
		s.SetInt(prog, IDOutputHeight, int32(output.Height)), //nolint:gosec // texture sizes fit in int32
		s.DispatchCompute(prog, grid.X, grid.Y, grid.Z),
		s.EndSample(),
	)
	return grid, err
}

func textureSize(t gpucore.Texture) mgl32.Vec4 {
	w, h := float32(max(t.Width, 1)), float32(max(t.Height, 1))
	return mgl32.Vec4{w, h, 1 / w, 1 / h}
}
