package rtreflect

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestEnvironmentValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Environment)
		wantErr bool
	}{
		{"default", func(*Environment) {}, false},
		{"zero bias", func(e *Environment) { e.RayBias = 0 }, false},
		{"negative bias", func(e *Environment) { e.RayBias = -1 }, true},
		{"zero max length", func(e *Environment) { e.RayMaxLength = 0 }, true},
		{"NaN max length", func(e *Environment) { e.RayMaxLength = float32(math.NaN()) }, true},
		{"negative radius", func(e *Environment) { e.DenoiseRadius = -1 }, true},
		{"zero sigma", func(e *Environment) { e.DenoiseSigma = 0 }, true},
		{"zero lights per cell", func(e *Environment) { e.MaxLightsPerCell = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DefaultEnvironment()
			tt.mutate(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEnvironment) {
				t.Errorf("Validate() error = %v, want ErrInvalidEnvironment", err)
			}
		})
	}
}

func TestDefaultEnvironmentMask(t *testing.T) {
	if got := DefaultEnvironment().DefaultMask; got != LayerMaskEverything {
		t.Errorf("DefaultMask = %v, want Everything", got)
	}
}

func TestClusterConfig(t *testing.T) {
	c := DefaultClusterConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("default Validate() error = %v", err)
	}
	if got := c.CellCount(); got != 64*64*32 {
		t.Errorf("CellCount() = %d, want %d", got, 64*64*32)
	}
	if got := c.CellStride(); got != 11 {
		t.Errorf("CellStride() = %d, want 11", got)
	}

	bad := []ClusterConfig{
		{CellsX: 0, CellsY: 1, CellsZ: 1, ClusterRange: 1, MaxLightsPerCell: 1},
		{CellsX: 1, CellsY: 1, CellsZ: 1, ClusterRange: 0, MaxLightsPerCell: 1},
		{CellsX: 1, CellsY: 1, CellsZ: 1, ClusterRange: 1, MaxLightsPerCell: 0},
	}
	for i, b := range bad {
		if err := b.Validate(); !errors.Is(err, ErrInvalidClusterConfig) {
			t.Errorf("bad[%d].Validate() error = %v, want ErrInvalidClusterConfig", i, err)
		}
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	c := DefaultPipelineConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("default Validate() error = %v", err)
	}
	c.DefaultViewportHeight = -1
	if err := c.Validate(); !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("Validate() error = %v, want ErrInvalidViewport", err)
	}
}

func TestParseCameraType(t *testing.T) {
	tests := []struct {
		in      string
		want    CameraType
		wantErr bool
	}{
		{"game", CameraTypeGame, false},
		{"SceneView", CameraTypeSceneView, false},
		{"scene", CameraTypeSceneView, false},
		{"PREVIEW", CameraTypePreview, false},
		{"reflection", CameraTypeReflection, false},
		{"vr", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCameraType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCameraType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownCameraType) {
			t.Errorf("ParseCameraType(%q) error = %v, want ErrUnknownCameraType", tt.in, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseCameraType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCameraEditorView(t *testing.T) {
	tests := []struct {
		typ  CameraType
		want bool
	}{
		{CameraTypeGame, false},
		{CameraTypeSceneView, true},
		{CameraTypePreview, true},
		{CameraTypeReflection, false},
	}
	for _, tt := range tests {
		if got := tt.typ.IsEditorView(); got != tt.want {
			t.Errorf("%v.IsEditorView() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestCameraInverseViewProjection(t *testing.T) {
	cam := NewCamera(1, CameraTypeGame, 60, 640, 480)
	cam.LookAt(mgl32.Vec3{0, 2, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})

	world := mgl32.Vec4{1, 0.5, -1, 1}
	clip := cam.ViewProjection().Mul4x1(world)
	back := cam.InverseViewProjection().Mul4x1(clip)
	back = back.Mul(1 / back[3])
	if !back.ApproxEqualThreshold(world, 1e-4) {
		t.Errorf("round trip = %v, want %v", back, world)
	}
	if cam.Position != (mgl32.Vec3{0, 2, 5}) {
		t.Errorf("Position = %v", cam.Position)
	}
	if got := cam.ScreenSize(); got[0] != 640 || got[1] != 480 {
		t.Errorf("ScreenSize() = %v", got)
	}
}
