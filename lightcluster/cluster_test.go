package lightcluster

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/gpucore"
)

func smallConfig() rtreflect.ClusterConfig {
	return rtreflect.ClusterConfig{
		CellsX:           4,
		CellsY:           4,
		CellsZ:           4,
		ClusterRange:     8,
		MaxLightsPerCell: 2,
	}
}

func newCluster(t *testing.T, cfg rtreflect.ClusterConfig) (*Cluster, *gpucore.MemoryDevice) {
	t.Helper()
	d := gpucore.NewMemoryDevice()
	c := New()
	if err := c.Initialize(cfg, d); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(c.ReleaseResources)
	return c, d
}

func point(x, y, z, r float32) rtreflect.LightDescriptor {
	return rtreflect.LightDescriptor{
		Type:      rtreflect.LightTypePoint,
		Position:  mgl32.Vec3{x, y, z},
		Range:     r,
		Color:     mgl32.Vec3{1, 1, 1},
		Intensity: 1,
	}
}

func TestClassifyOrdersPunctualFirst(t *testing.T) {
	lights := []rtreflect.LightDescriptor{
		{Type: rtreflect.LightTypeRectangle, Range: 1, Intensity: 1},
		{Type: rtreflect.LightTypeDirectional, Range: 1},
		{Type: rtreflect.LightTypePoint, Range: 1, Intensity: 2},
		{Type: rtreflect.LightTypeTube, Range: 1, Intensity: 3},
		{Type: rtreflect.LightTypeSpot, Range: 1, Intensity: 4},
		{Type: rtreflect.LightTypePoint, Range: 0},
	}
	ordered, punctual, area := classify(lights)
	if punctual != 2 || area != 2 {
		t.Fatalf("classify() counts = %d punctual, %d area, want 2 and 2", punctual, area)
	}
	want := []rtreflect.LightType{
		rtreflect.LightTypePoint, rtreflect.LightTypeSpot,
		rtreflect.LightTypeRectangle, rtreflect.LightTypeTube,
	}
	for i, typ := range want {
		if ordered[i].Type != typ {
			t.Errorf("ordered[%d].Type = %v, want %v", i, ordered[i].Type, typ)
		}
	}
}

func TestEvaluateCounts(t *testing.T) {
	c, _ := newCluster(t, smallConfig())
	cam := rtreflect.NewCamera(1, rtreflect.CameraTypeGame, 60, 64, 64)
	lights := []rtreflect.LightDescriptor{
		point(0, 0, 0, 1),
		{Type: rtreflect.LightTypeDirectional, Direction: mgl32.Vec3{0, -1, 0}, Intensity: 1},
		{Type: rtreflect.LightTypeRectangle, Position: mgl32.Vec3{1, 1, 1}, Range: 2, AreaSize: mgl32.Vec2{1, 1}},
	}
	rec := gpucore.NewRecorder("")
	if err := c.EvaluateLightClusters(rec, cam, lights); err != nil {
		t.Fatalf("EvaluateLightClusters() error = %v", err)
	}
	if c.PunctualLightCount() != 1 || c.AreaLightCount() != 1 {
		t.Errorf("counts = %d punctual, %d area, want 1 and 1", c.PunctualLightCount(), c.AreaLightCount())
	}
	if n := len(rec.Commands()); n != 2 {
		t.Errorf("recorded %d commands, want 2 uploads", n)
	}
}

func TestEvaluateBoundsClampedToLights(t *testing.T) {
	c, _ := newCluster(t, smallConfig())
	cam := rtreflect.NewCamera(1, rtreflect.CameraTypeGame, 60, 64, 64)
	rec := gpucore.NewRecorder("")
	if err := c.EvaluateLightClusters(rec, cam, []rtreflect.LightDescriptor{point(2, 0, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	if got, want := c.MinClusterPos(), (mgl32.Vec4{1, -1, -1, 1}); got != want {
		t.Errorf("MinClusterPos() = %v, want %v", got, want)
	}
	if got, want := c.MaxClusterPos(), (mgl32.Vec4{3, 1, 1, 1}); got != want {
		t.Errorf("MaxClusterPos() = %v, want %v", got, want)
	}
}

func TestEvaluateNoLightsUsesCameraRange(t *testing.T) {
	c, _ := newCluster(t, smallConfig())
	cam := rtreflect.NewCamera(1, rtreflect.CameraTypeGame, 60, 64, 64)
	cam.Position = mgl32.Vec3{10, 0, 0}
	if err := c.EvaluateLightClusters(gpucore.NewRecorder(""), cam, nil); err != nil {
		t.Fatal(err)
	}
	if got, want := c.MinClusterPos(), (mgl32.Vec4{2, -8, -8, 1}); got != want {
		t.Errorf("MinClusterPos() = %v, want %v", got, want)
	}
	if c.PunctualLightCount() != 0 || c.AreaLightCount() != 0 {
		t.Error("light counts not zero for an empty light list")
	}
}

func TestEvaluateBinsLights(t *testing.T) {
	cfg := smallConfig()
	c, d := newCluster(t, cfg)
	cam := rtreflect.NewCamera(1, rtreflect.CameraTypeGame, 60, 64, 64)

	// Two small lights in opposite corners of a 4x4x4 grid spanning [-4,4].
	lights := []rtreflect.LightDescriptor{
		point(-3.5, -3.5, -3.5, 0.25),
		point(3.5, 3.5, 3.5, 0.25),
		point(0, 0, 0, 4),
	}
	rec := gpucore.NewRecorder("")
	if err := c.EvaluateLightClusters(rec, cam, lights); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		x, y, z int
		want    []uint32
	}{
		{0, 0, 0, []uint32{0, 2}},
		{3, 3, 3, []uint32{1, 2}},
		{1, 2, 1, []uint32{2}},
	}
	for _, tt := range tests {
		got := c.CellLights(tt.x, tt.y, tt.z)
		if len(got) != len(tt.want) {
			t.Errorf("CellLights(%d,%d,%d) = %v, want %v", tt.x, tt.y, tt.z, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("CellLights(%d,%d,%d) = %v, want %v", tt.x, tt.y, tt.z, got, tt.want)
				break
			}
		}
	}
	if c.CellLights(4, 0, 0) != nil {
		t.Error("CellLights out of range returned data")
	}

	// The recorded upload carries the header.
	if _, err := d.Replay(rec); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	buf, _ := d.BufferData(c.Cluster())
	header := [4]uint32{}
	for i := range header {
		header[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	if header != [4]uint32{4, 4, 4, 3} {
		t.Errorf("header = %v, want [4 4 4 3]", header)
	}
}

func TestEvaluateOverflowIsCapped(t *testing.T) {
	cfg := smallConfig()
	cfg.CellsX, cfg.CellsY, cfg.CellsZ = 1, 1, 1
	c, _ := newCluster(t, cfg)
	cam := rtreflect.NewCamera(1, rtreflect.CameraTypeGame, 60, 64, 64)

	lights := []rtreflect.LightDescriptor{point(0, 0, 0, 1), point(0, 0, 0, 1), point(0, 0, 0, 1), point(0, 0, 0, 1)}
	if err := c.EvaluateLightClusters(gpucore.NewRecorder(""), cam, lights); err != nil {
		t.Fatal(err)
	}
	if got := c.CellLights(0, 0, 0); len(got) != cfg.MaxLightsPerCell {
		t.Errorf("len(CellLights) = %d, want %d", len(got), cfg.MaxLightsPerCell)
	}
	if c.Overflow() != 2 {
		t.Errorf("Overflow() = %d, want 2", c.Overflow())
	}
}

func TestEvaluateGrowsLightBuffer(t *testing.T) {
	c, d := newCluster(t, smallConfig())
	cam := rtreflect.NewCamera(1, rtreflect.CameraTypeGame, 60, 64, 64)
	first := c.LightDatas()

	// A first camera uploads into the initial buffer, then a second camera
	// with more lights is recorded into the same stream.
	rec := gpucore.NewRecorder("")
	if err := c.EvaluateLightClusters(rec, cam, []rtreflect.LightDescriptor{point(0, 0, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	lights := make([]rtreflect.LightDescriptor, minLightCapacity+1)
	for i := range lights {
		lights[i] = point(0, 0, 0, 1)
	}
	if err := c.EvaluateLightClusters(rec, cam, lights); err != nil {
		t.Fatal(err)
	}
	if c.LightDatas() == first {
		t.Fatal("light buffer not reallocated")
	}
	if _, ok := d.BufferData(first); !ok {
		t.Fatal("light buffer referenced by a recorded upload was destroyed before submission")
	}
	if rec.Retired() != 1 {
		t.Errorf("Retired() = %d, want 1", rec.Retired())
	}

	// Replay applies the upload into the old buffer, then releases it.
	if _, err := d.Replay(rec); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if _, ok := d.BufferData(first); ok {
		t.Error("old light buffer not destroyed after submission")
	}
}

func TestPackLights(t *testing.T) {
	spot := rtreflect.LightDescriptor{
		Type:      rtreflect.LightTypeSpot,
		Position:  mgl32.Vec3{1, 2, 3},
		Direction: mgl32.Vec3{0, -1, 0},
		Range:     5,
		Color:     mgl32.Vec3{1, 0.5, 0},
		Intensity: 2,
		SpotAngle: 90,
	}
	data := packLights(nil, []rtreflect.LightDescriptor{spot})
	if len(data) != LightDataSize {
		t.Fatalf("len(data) = %d, want %d", len(data), LightDataSize)
	}
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])) }

	if f(3) != 5 {
		t.Errorf("range = %v, want 5", f(3))
	}
	if f(4) != 2 || f(5) != 1 {
		t.Errorf("radiance = (%v, %v), want (2, 1)", f(4), f(5))
	}
	if f(7) != float32(rtreflect.LightTypeSpot) {
		t.Errorf("type = %v, want %v", f(7), float32(rtreflect.LightTypeSpot))
	}
	if want := float32(math.Cos(math.Pi / 4)); math.Abs(float64(f(11)-want)) > 1e-6 {
		t.Errorf("cos half angle = %v, want %v", f(11), want)
	}
}

func TestInitializeErrors(t *testing.T) {
	c := New()
	bad := smallConfig()
	bad.CellsZ = 0
	if err := c.Initialize(bad, gpucore.NewMemoryDevice()); !errors.Is(err, rtreflect.ErrInvalidClusterConfig) {
		t.Errorf("Initialize() error = %v, want ErrInvalidClusterConfig", err)
	}
	if err := c.EvaluateLightClusters(gpucore.NewRecorder(""), rtreflect.NewCamera(1, 0, 60, 1, 1), nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EvaluateLightClusters() error = %v, want ErrNotInitialized", err)
	}
}

func TestReleaseResources(t *testing.T) {
	d := gpucore.NewMemoryDevice()
	c := New()
	if err := c.Initialize(smallConfig(), d); err != nil {
		t.Fatal(err)
	}
	if d.LiveResources() != 2 {
		t.Fatalf("LiveResources() = %d, want 2", d.LiveResources())
	}
	c.ReleaseResources()
	c.ReleaseResources()
	if d.LiveResources() != 0 {
		t.Errorf("LiveResources() = %d after release, want 0", d.LiveResources())
	}
}
