package native

import (
	"strings"
	"testing"
)

// isNagaLimitation reports whether a compile error comes from a WGSL
// feature the naga version in use does not lower yet.
func isNagaLimitation(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"runtime-sized arrays not yet implemented",
		"not yet implemented",
		"not supported",
		"lowering error",
		"atomic",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func TestShaderSourcesNonEmpty(t *testing.T) {
	src := ShaderSources()
	tests := []struct {
		name     string
		source   string
		required []string
	}{
		{"trace", src.Trace, []string{"@compute", "@workgroup_size(8, 8, 1)", "fn main", "var<uniform> params", "read_write"}},
		{"bilateral_filter", src.BilateralFilter, []string{"@compute", "@workgroup_size(8, 8, 1)", "fn main", "source_width"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.source) < 100 {
				t.Fatalf("%s shader source suspiciously short: %d bytes", tt.name, len(tt.source))
			}
			for _, s := range tt.required {
				if !strings.Contains(tt.source, s) {
					t.Errorf("%s shader missing %q", tt.name, s)
				}
			}
		})
	}
}

func TestCompileShaderToSPIRV(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"trace", TraceShaderWGSL},
		{"bilateral_filter", BilateralFilterWGSL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spirv, err := CompileShaderToSPIRV(tt.source)
			if err != nil {
				if isNagaLimitation(err) {
					t.Skipf("naga cannot compile %s yet: %v", tt.name, err)
				}
				t.Fatalf("CompileShaderToSPIRV() error = %v", err)
			}
			if len(spirv) < 5 {
				t.Fatalf("SPIR-V too short: %d words", len(spirv))
			}
			if spirv[0] != 0x07230203 {
				t.Errorf("SPIR-V magic = %#x, want 0x07230203", spirv[0])
			}
		})
	}
}

func TestCompileShaderToSPIRVInvalid(t *testing.T) {
	if _, err := CompileShaderToSPIRV("fn main( {"); err == nil {
		t.Error("CompileShaderToSPIRV(invalid) error = nil, want error")
	}
}
