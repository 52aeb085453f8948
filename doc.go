// Package rtreflect renders screen-space ray-traced specular reflections.
//
// # Overview
//
// A ReflectionPass records, per camera and per frame, a ray generation
// dispatch that traces one reflection ray per pixel against a scene
// acceleration structure, followed by a depth- and normal-aware bilateral
// denoise into a caller-supplied output buffer. Hits are shaded against a
// clustered light set; rays that escape the scene sample a sky texture.
//
// # Quick Start
//
//	registry := rtreflect.NewFilterRegistry(provider)
//	pass, err := rtreflect.NewReflectionPass(rtreflect.Dependencies{
//	    Device:          device,
//	    Provider:        provider,
//	    Environment:     env,
//	    NewLightCluster: func() rtreflect.LightCluster { return lightcluster.New() },
//	})
//	if err != nil { ... }
//
//	cfg := rtreflect.DefaultPipelineConfig()
//	cfg.Shaders, err = rtreflect.LoadShaders(device, sources)
//	if err := pass.Initialize(cfg, sky, registry, shared); err != nil { ... }
//	defer pass.Release()
//
//	filter := rtreflect.NewFilter(camera.ID, rtreflect.LayerMaskEverything)
//	filter.Attach(registry)
//	defer filter.Detach(registry)
//
//	outcome, err := pass.RenderReflections(camera, stream, output)
//
// # Structure Selection
//
// A camera with a registered Filter uses the filter's visibility mask.
// Scene view and preview cameras without a filter fall back to the
// environment's default mask. Any other camera gets no reflections. When
// no acceleration structure resolves, or a required resource is missing,
// RenderReflections records nothing and reports why through its Outcome.
//
// # Dispatch Geometry
//
// The trace dispatch launches ActualWidth x ActualHeight rays. The denoise
// dispatch is tiled in 8x8 blocks: (ceil(W/8), ceil(H/8), 1) where W and H
// are the output buffer's width and height.
//
// # Architecture
//
// The package is organized into:
//   - rtreflect: FilterRegistry, ReflectionPass, configuration
//   - gpucore: backend-agnostic device and command stream contracts
//   - lightcluster: world-space light clustering
//   - accel: per-mask BVH acceleration structures
//   - backend/native: gogpu/wgpu HAL implementation of gpucore
//   - cmd/rtreflect: demo renderer CLI
package rtreflect
