package native

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/gpucore"
)

func TestBindGroupLayoutEntries(t *testing.T) {
	ro := gputypes.BufferBindingTypeReadOnlyStorage
	rw := gputypes.BufferBindingTypeStorage
	uni := gputypes.BufferBindingTypeUniform

	trace := rtreflect.ReflectionProgramLayout()
	filter := rtreflect.BilateralFilterLayout()
	tests := []struct {
		name   string
		layout *gpucore.ProgramLayout
		want   []gputypes.BufferBindingType
	}{
		{
			name:   "trace",
			layout: &trace,
			// params, nodes, triangles, noise, depth, normals, sky, cluster, lights, lighting
			want: []gputypes.BufferBindingType{uni, ro, ro, ro, ro, ro, ro, ro, ro, rw},
		},
		{
			name:   "bilateral_filter",
			layout: &filter,
			want:   []gputypes.BufferBindingType{uni, ro, ro, ro, rw},
		},
		{
			name: "no uniforms",
			layout: &gpucore.ProgramLayout{Resources: []gpucore.ResourceSlot{
				{ID: gpucore.PropertyToID("_A"), Kind: gpucore.ResourceBuffer},
			}},
			want: []gputypes.BufferBindingType{ro},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := BindGroupLayoutEntries(tt.layout)
			if len(entries) != len(tt.want) {
				t.Fatalf("len(entries) = %d, want %d", len(entries), len(tt.want))
			}
			first := uint32(1)
			if hasUniforms(tt.layout) {
				first = 0
			}
			for i, e := range entries {
				if e.Binding != first+uint32(i) { //nolint:gosec // small test index
					t.Errorf("entries[%d].Binding = %d, want %d", i, e.Binding, first+uint32(i)) //nolint:gosec // small test index
				}
				if e.Visibility != gputypes.ShaderStageCompute {
					t.Errorf("entries[%d].Visibility = %v, want compute", i, e.Visibility)
				}
				if e.Buffer == nil || e.Buffer.Type != tt.want[i] {
					t.Errorf("entries[%d].Buffer = %+v, want type %v", i, e.Buffer, tt.want[i])
				}
			}
		})
	}
}

func TestConvertBufferUsage(t *testing.T) {
	tests := []struct {
		in   gpucore.BufferUsage
		want gputypes.BufferUsage
	}{
		{gpucore.BufferUsageStorage, gputypes.BufferUsageStorage},
		{gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{gpucore.BufferUsageCopySrc, gputypes.BufferUsageCopySrc},
		{0, 0},
	}
	for _, tt := range tests {
		if got := convertBufferUsage(tt.in); got != tt.want {
			t.Errorf("convertBufferUsage(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAlignSize(t *testing.T) {
	tests := []struct{ in, want uint64 }{{0, 0}, {1, 4}, {4, 4}, {5, 8}, {192, 192}}
	for _, tt := range tests {
		if got := alignSize(tt.in); got != tt.want {
			t.Errorf("alignSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRayWorkgroups(t *testing.T) {
	layout := rtreflect.ReflectionProgramLayout()
	tests := []struct {
		w, h    uint32
		x, y, z uint32
	}{
		{1920, 1080, 240, 135, 1},
		{1, 1, 1, 1, 1},
		{9, 17, 2, 3, 1},
		{0, 10, 0, 2, 1},
	}
	for _, tt := range tests {
		x, y, z := rayWorkgroups(&layout, tt.w, tt.h)
		if x != tt.x || y != tt.y || z != tt.z {
			t.Errorf("rayWorkgroups(%d, %d) = (%d, %d, %d), want (%d, %d, %d)", tt.w, tt.h, x, y, z, tt.x, tt.y, tt.z)
		}
	}
}
