package rtreflect

import (
	"fmt"

	"github.com/gogpu/rtreflect/gpucore"
)

// ReflectionShaderPass is the material pass used for hit shading.
const ReflectionShaderPass = "RTRaytrace_Reflections"

// FilterReflectionSample is the profiling scope around the denoise dispatch.
const FilterReflectionSample = "Filter Reflection"

// Shader property IDs, resolved once at package initialization.
var (
	IDDenoiseRadius  = gpucore.PropertyToID("_DenoiseRadius")
	IDGaussianSigma  = gpucore.PropertyToID("_GaussianSigma")
	IDSourceTexture  = gpucore.PropertyToID("_SourceTexture")
	IDOutputTexture  = gpucore.PropertyToID("_OutputTexture")
	IDOutputWidth    = gpucore.PropertyToID("_OutputWidth")
	IDOutputHeight   = gpucore.PropertyToID("_OutputHeight")
	IDSourceWidth    = gpucore.PropertyToID("_SourceWidth")
	IDDepthTexture   = gpucore.PropertyToID("_DepthTexture")
	IDNormalTexture  = gpucore.PropertyToID("_NormalBufferTexture")
	IDSkyTexture     = gpucore.PropertyToID("_SkyTexture")
	IDSkyTextureSize = gpucore.PropertyToID("_SkyTextureSize")

	IDRaytracingLightCluster = gpucore.PropertyToID("_RaytracingLightCluster")
	IDMinClusterPos          = gpucore.PropertyToID("_MinClusterPos")
	IDMaxClusterPos          = gpucore.PropertyToID("_MaxClusterPos")
	IDLightPerCellCount      = gpucore.PropertyToID("_LightPerCellCount")
	IDLightDatasRT           = gpucore.PropertyToID("_LightDatasRT")
	IDPunctualLightCountRT   = gpucore.PropertyToID("_PunctualLightCountRT")
	IDAreaLightCountRT       = gpucore.PropertyToID("_AreaLightCountRT")
	IDPixelSpreadAngle       = gpucore.PropertyToID("_PixelSpreadAngle")

	IDAccelerationStructure = gpucore.PropertyToID("_RaytracingAccelerationStructure")
	IDNoiseTexture          = gpucore.PropertyToID("_RaytracingNoiseTexture")
	IDNoiseResolution       = gpucore.PropertyToID("_RaytracingNoiseResolution")
	IDNumNoiseLayers        = gpucore.PropertyToID("_RaytracingNumNoiseLayers")
	IDRayBias               = gpucore.PropertyToID("_RaytracingRayBias")
	IDRayMaxLength          = gpucore.PropertyToID("_RaytracingRayMaxLength")
	IDFrameIndex            = gpucore.PropertyToID("_RaytracingFrameIndex")
	IDLightingTextureRW     = gpucore.PropertyToID("_SsrLightingTextureRW")
	IDIntermediateWidth     = gpucore.PropertyToID("_IntermediateWidth")

	IDInvViewProjMatrix = gpucore.PropertyToID("_InvViewProjMatrix")
	IDWorldSpaceCamera  = gpucore.PropertyToID("_WorldSpaceCameraPos")
	IDScreenSize        = gpucore.PropertyToID("_ScreenSize")
)

// ReflectionProgramLayout returns the parameter layout of the reflection
// trace program. The trace kernel source must declare its uniform block
// and bindings in this order.
func ReflectionProgramLayout() gpucore.ProgramLayout {
	return gpucore.ProgramLayout{
		Uniforms: []gpucore.UniformSlot{
			{ID: IDInvViewProjMatrix, Kind: gpucore.UniformMat4},
			{ID: IDWorldSpaceCamera, Kind: gpucore.UniformVec4},
			{ID: IDScreenSize, Kind: gpucore.UniformVec4},
			{ID: IDSkyTextureSize, Kind: gpucore.UniformVec4},
			{ID: IDMinClusterPos, Kind: gpucore.UniformVec4},
			{ID: IDMaxClusterPos, Kind: gpucore.UniformVec4},
			{ID: IDRayBias, Kind: gpucore.UniformFloat},
			{ID: IDRayMaxLength, Kind: gpucore.UniformFloat},
			{ID: IDPixelSpreadAngle, Kind: gpucore.UniformFloat},
			{ID: IDNoiseResolution, Kind: gpucore.UniformInt},
			{ID: IDNumNoiseLayers, Kind: gpucore.UniformInt},
			{ID: IDFrameIndex, Kind: gpucore.UniformInt},
			{ID: IDLightPerCellCount, Kind: gpucore.UniformInt},
			{ID: IDPunctualLightCountRT, Kind: gpucore.UniformInt},
			{ID: IDAreaLightCountRT, Kind: gpucore.UniformInt},
			{ID: IDIntermediateWidth, Kind: gpucore.UniformInt},
		},
		Resources: []gpucore.ResourceSlot{
			{ID: IDAccelerationStructure, Kind: gpucore.ResourceAccelerationStructure},
			{ID: IDNoiseTexture, Kind: gpucore.ResourceTexture},
			{ID: IDDepthTexture, Kind: gpucore.ResourceTexture},
			{ID: IDNormalTexture, Kind: gpucore.ResourceTexture},
			{ID: IDSkyTexture, Kind: gpucore.ResourceTexture},
			{ID: IDRaytracingLightCluster, Kind: gpucore.ResourceBuffer},
			{ID: IDLightDatasRT, Kind: gpucore.ResourceBuffer},
			{ID: IDLightingTextureRW, Kind: gpucore.ResourceTextureRW},
		},
		WorkgroupSize: [2]uint32{8, 8},
	}
}

// BilateralFilterLayout returns the parameter layout of the denoise kernel.
func BilateralFilterLayout() gpucore.ProgramLayout {
	return gpucore.ProgramLayout{
		Uniforms: []gpucore.UniformSlot{
			{ID: IDDenoiseRadius, Kind: gpucore.UniformInt},
			{ID: IDGaussianSigma, Kind: gpucore.UniformFloat},
			{ID: IDOutputWidth, Kind: gpucore.UniformInt},
			{ID: IDOutputHeight, Kind: gpucore.UniformInt},
			{ID: IDSourceWidth, Kind: gpucore.UniformInt},
		},
		Resources: []gpucore.ResourceSlot{
			{ID: IDSourceTexture, Kind: gpucore.ResourceTexture},
			{ID: IDDepthTexture, Kind: gpucore.ResourceTexture},
			{ID: IDNormalTexture, Kind: gpucore.ResourceTexture},
			{ID: IDOutputTexture, Kind: gpucore.ResourceTextureRW},
		},
		WorkgroupSize: [2]uint32{DenoiseTileSize, DenoiseTileSize},
	}
}

// ShaderSources holds the kernel sources the pass needs. An empty source
// leaves the corresponding program unavailable.
type ShaderSources struct {
	Trace           string
	BilateralFilter string
}

// LoadShaders compiles the pass programs once and returns their handles.
// Programs whose source is empty are left as gpucore.InvalidID; the pass
// then skips rendering until they are provided.
func LoadShaders(device gpucore.Device, src ShaderSources) (ShaderResources, error) {
	var res ShaderResources
	if src.Trace != "" {
		id, err := device.CreateProgram(&gpucore.ProgramDesc{
			Label:      "RayGenReflections",
			Kind:       gpucore.ProgramRayTracing,
			Source:     src.Trace,
			EntryPoint: "main",
			Layout:     ReflectionProgramLayout(),
		})
		if err != nil {
			return res, fmt.Errorf("load reflection trace program: %w", err)
		}
		res.ReflectionRaytracing = id
	}
	if src.BilateralFilter != "" {
		id, err := device.CreateProgram(&gpucore.ProgramDesc{
			Label:      "GaussianBilateralFilter",
			Kind:       gpucore.ProgramCompute,
			Source:     src.BilateralFilter,
			EntryPoint: "main",
			Layout:     BilateralFilterLayout(),
		})
		if err != nil {
			if res.ReflectionRaytracing != gpucore.InvalidID {
				device.DestroyProgram(res.ReflectionRaytracing)
			}
			return ShaderResources{}, fmt.Errorf("load bilateral filter program: %w", err)
		}
		res.ReflectionBilateralFilter = id
	}
	Logger().Debug("rtreflect: shaders loaded",
		"trace", res.ReflectionRaytracing, "filter", res.ReflectionBilateralFilter)
	return res, nil
}

// Release destroys the loaded programs.
func (r *ShaderResources) Release(device gpucore.Device) {
	if r.ReflectionRaytracing != gpucore.InvalidID {
		device.DestroyProgram(r.ReflectionRaytracing)
		r.ReflectionRaytracing = gpucore.InvalidID
	}
	if r.ReflectionBilateralFilter != gpucore.InvalidID {
		device.DestroyProgram(r.ReflectionBilateralFilter)
		r.ReflectionBilateralFilter = gpucore.InvalidID
	}
}
