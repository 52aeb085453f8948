package main

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/accel"
	"github.com/gogpu/rtreflect/gpucore"
)

// Demo scene layers.
const (
	layerFloor   = 0
	layerProps   = 1
	layerPillars = 2
)

// quadXZ returns a square of the given half extent in the XZ plane.
func quadXZ(half float32) []mgl32.Vec3 {
	return []mgl32.Vec3{
		{-half, 0, -half}, {half, 0, -half}, {half, 0, half},
		{-half, 0, -half}, {half, 0, half}, {-half, 0, half},
	}
}

// box returns the twelve triangles of an axis-aligned box centered on the
// origin.
func box(half mgl32.Vec3) []mgl32.Vec3 {
	x, y, z := half[0], half[1], half[2]
	c := [8]mgl32.Vec3{
		{-x, -y, -z}, {x, -y, -z}, {x, y, -z}, {-x, y, -z},
		{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z},
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, {5, 4, 7, 6}, // back, front
		{4, 0, 3, 7}, {1, 5, 6, 2}, // left, right
		{3, 2, 6, 7}, {4, 5, 1, 0}, // top, bottom
	}
	out := make([]mgl32.Vec3, 0, 36)
	for _, f := range faces {
		out = append(out, c[f[0]], c[f[1]], c[f[2]], c[f[0]], c[f[2]], c[f[3]])
	}
	return out
}

// populateScene adds the demo geometry and lights to m. The albedo alpha
// channel is the surface roughness used for the G-buffer.
func populateScene(m *accel.Manager) error {
	instances := []accel.Instance{
		{Label: "floor", Layer: layerFloor, Vertices: quadXZ(10), Albedo: mgl32.Vec4{0.6, 0.6, 0.65, 0.05}},
		{Label: "red box", Layer: layerProps, Transform: mgl32.Translate3D(-1.5, 0.5, 0),
			Vertices: box(mgl32.Vec3{0.5, 0.5, 0.5}), Albedo: mgl32.Vec4{0.9, 0.2, 0.2, 0.4}},
		{Label: "blue box", Layer: layerProps, Transform: mgl32.Translate3D(1.2, 0.75, -1).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(30))),
			Vertices: box(mgl32.Vec3{0.75, 0.75, 0.75}), Albedo: mgl32.Vec4{0.2, 0.3, 0.9, 0.3}},
		{Label: "pillar", Layer: layerPillars, Transform: mgl32.Translate3D(0, 1.5, -3),
			Vertices: box(mgl32.Vec3{0.3, 1.5, 0.3}), Albedo: mgl32.Vec4{0.3, 0.85, 0.35, 0.2}},
	}
	for _, in := range instances {
		if _, err := m.AddInstance(in); err != nil {
			return err
		}
	}

	m.AddLight(rtreflect.LightDescriptor{
		Type: rtreflect.LightTypePoint, Position: mgl32.Vec3{0, 3, 2}, Range: 8,
		Color: mgl32.Vec3{1, 0.95, 0.85}, Intensity: 1,
	})
	m.AddLight(rtreflect.LightDescriptor{
		Type: rtreflect.LightTypeSpot, Position: mgl32.Vec3{-3, 4, -1}, Direction: mgl32.Vec3{0.5, -1, 0}.Normalize(),
		Range: 10, SpotAngle: 50, Color: mgl32.Vec3{1, 0.6, 0.3}, Intensity: 1.5,
		Layers: rtreflect.LayerMask(layerFloor, layerProps),
	})
	m.AddLight(rtreflect.LightDescriptor{
		Type: rtreflect.LightTypeRectangle, Position: mgl32.Vec3{2, 3, -3}, Direction: mgl32.Vec3{0, -1, 0},
		Range: 6, AreaSize: mgl32.Vec2{2, 1}, Color: mgl32.Vec3{0.4, 0.6, 1}, Intensity: 1,
	})
	m.AddLight(rtreflect.LightDescriptor{
		Type: rtreflect.LightTypeDirectional, Direction: mgl32.Vec3{-0.3, -1, -0.2}.Normalize(),
		Color: mgl32.Vec3{1, 1, 1}, Intensity: 0.5,
	})
	return nil
}

// gbuffer holds the per-pixel surface data of the primary view.
type gbuffer struct {
	width, height int

	// depth is NDC depth remapped to [0, 1]; 1 marks the background.
	depth []float32

	// normals holds xyz world normal and roughness in w.
	normals []float32

	// albedo is the surface color, or the sky color for background pixels.
	albedo []mgl32.Vec3
}

// rasterize casts one primary ray per pixel through the scene BVH.
func rasterize(camera *rtreflect.Camera, tris []accel.Triangle, sky func(dir mgl32.Vec3) mgl32.Vec3) *gbuffer {
	w, h := camera.ActualWidth, camera.ActualHeight
	g := &gbuffer{
		width:   w,
		height:  h,
		depth:   make([]float32, w*h),
		normals: make([]float32, w*h*4),
		albedo:  make([]mgl32.Vec3, w*h),
	}
	bvh := accel.Build(tris, accel.DefaultLeafSize)
	viewProj := camera.ViewProjection()
	inv := viewProj.Inv()
	unproject := func(x, y, z float32) mgl32.Vec3 {
		p := inv.Mul4x1(mgl32.Vec4{x, y, z, 1})
		return p.Vec3().Mul(1 / p[3])
	}

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			i := py*w + px
			nx := (float32(px)+0.5)/float32(w)*2 - 1
			ny := 1 - (float32(py)+0.5)/float32(h)*2
			near := unproject(nx, ny, -1)
			far := unproject(nx, ny, 1)
			dir := far.Sub(near).Normalize()

			t, tri, ok := bvh.Intersect(camera.Position, dir, far.Sub(camera.Position).Len())
			if !ok {
				g.depth[i] = 1
				g.albedo[i] = sky(dir)
				continue
			}
			hit := camera.Position.Add(dir.Mul(t))
			clip := viewProj.Mul4x1(hit.Vec4(1))
			g.depth[i] = clip[2]/clip[3]*0.5 + 0.5

			s := &bvh.Triangles[tri]
			n := s.V1.Sub(s.V0).Cross(s.V2.Sub(s.V0)).Normalize()
			if n.Dot(dir) > 0 {
				n = n.Mul(-1)
			}
			copy(g.normals[i*4:], []float32{n[0], n[1], n[2], s.Albedo[3]})
			g.albedo[i] = s.Albedo.Vec3()
		}
	}
	return g
}

// skyColor is a vertical gradient from a warm horizon to a blue zenith.
func skyColor(dir mgl32.Vec3) mgl32.Vec3 {
	t := mgl32.Clamp(dir[1]*0.5+0.5, 0, 1)
	horizon := mgl32.Vec3{0.9, 0.8, 0.7}
	zenith := mgl32.Vec3{0.25, 0.45, 0.85}
	return horizon.Mul(1 - t).Add(zenith.Mul(t))
}

// skyTexels renders skyColor into an equirectangular RGBA map matching the
// lookup in the trace kernel.
func skyTexels(w, h int) []float32 {
	out := make([]float32, w*h*4)
	for y := 0; y < h; y++ {
		theta := (float64(y) + 0.5) / float64(h) * math.Pi
		for x := 0; x < w; x++ {
			phi := ((float64(x)+0.5)/float64(w) - 0.5) * 2 * math.Pi
			dir := mgl32.Vec3{
				float32(math.Sin(theta) * math.Cos(phi)),
				float32(math.Cos(theta)),
				float32(math.Sin(theta) * math.Sin(phi)),
			}
			c := skyColor(dir)
			copy(out[(y*w+x)*4:], []float32{c[0], c[1], c[2], 1})
		}
	}
	return out
}

// noiseTexels returns layers of uniform random RGBA noise.
func noiseTexels(res, layers int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // visual noise only
	out := make([]float32, res*res*layers*4)
	for i := range out {
		out[i] = rng.Float32()
	}
	return out
}

// float32Bytes encodes values as little-endian f32 texels.
func float32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// bytesFloat32 decodes little-endian f32 texels.
func bytesFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// uploadTexture creates a texture and fills it with texels.
func uploadTexture(device gpucore.Device, desc *gpucore.TextureDesc, texels []float32) (gpucore.Texture, error) {
	tex, err := device.CreateTexture(desc)
	if err != nil {
		return gpucore.Texture{}, err
	}
	if err := device.WriteTexture(tex, float32Bytes(texels)); err != nil {
		device.DestroyTexture(tex.ID)
		return gpucore.Texture{}, err
	}
	return tex, nil
}

// frameInputs implements the shared buffer and sky providers for one frame.
type frameInputs struct {
	depth, normals, sky gpucore.Texture
}

func (f *frameInputs) DepthStencilBuffer() gpucore.Texture { return f.depth }
func (f *frameInputs) NormalBuffer() gpucore.Texture       { return f.normals }
func (f *frameInputs) SkyReflection() gpucore.Texture      { return f.sky }

func (f *frameInputs) release(device gpucore.Device) {
	for _, t := range []gpucore.Texture{f.depth, f.normals, f.sky} {
		if t.Valid() {
			device.DestroyTexture(t.ID)
		}
	}
}
