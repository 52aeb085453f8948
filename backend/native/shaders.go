package native

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rtreflect"
)

// TraceShaderWGSL is the reflection ray generation kernel.
//
//go:embed shaders/trace.wgsl
var TraceShaderWGSL string

// BilateralFilterWGSL is the reflection denoise kernel.
//
//go:embed shaders/bilateral_filter.wgsl
var BilateralFilterWGSL string

// ShaderSources returns the kernels for rtreflect.LoadShaders.
func ShaderSources() rtreflect.ShaderSources {
	return rtreflect.ShaderSources{
		Trace:           TraceShaderWGSL,
		BilateralFilter: BilateralFilterWGSL,
	}
}

// CompileShaderToSPIRV compiles WGSL source to SPIR-V words.
func CompileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}

func createShaderModule(device hal.Device, label string, spirvCode []uint32) (hal.ShaderModule, error) {
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirvCode,
		},
	})
}
