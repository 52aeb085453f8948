package accel

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func randomTriangles(n int, seed int64) []Triangle {
	rng := rand.New(rand.NewSource(seed))
	r := func() float32 { return rng.Float32()*20 - 10 }
	tris := make([]Triangle, n)
	for i := range tris {
		c := mgl32.Vec3{r(), r(), r()}
		tris[i] = Triangle{
			V0:     c,
			V1:     c.Add(mgl32.Vec3{0.5, 0, 0}),
			V2:     c.Add(mgl32.Vec3{0, 0.5, 0.5}),
			Albedo: mgl32.Vec4{1, 1, 1, 1},
		}
	}
	return tris
}

func TestBuildEmpty(t *testing.T) {
	h := Build(nil, 0)
	if len(h.Nodes) != 0 {
		t.Errorf("len(Nodes) = %d, want 0", len(h.Nodes))
	}
	if !h.Bounds().IsEmpty() {
		t.Error("Bounds() of empty BVH not empty")
	}
	if _, _, ok := h.Intersect(mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, 100); ok {
		t.Error("Intersect() hit on empty BVH")
	}
}

func TestBuildCoversEveryTriangleOnce(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		leafSize int
	}{
		{"single", 1, 4},
		{"leaf", 4, 4},
		{"small", 17, 2},
		{"large", 500, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Build(randomTriangles(tt.n, 1), tt.leafSize)
			seen := make([]int, tt.n)
			for i := range h.Nodes {
				n := &h.Nodes[i]
				if !n.IsLeaf() {
					for _, c := range []uint32{n.LeftFirst, n.Right} {
						cb := h.Nodes[c].Bounds
						if cb.Union(n.Bounds) != n.Bounds {
							t.Errorf("child %d bounds %v escape parent %d bounds %v", c, cb, i, n.Bounds)
						}
					}
					continue
				}
				if int(n.Count) > tt.leafSize {
					t.Errorf("leaf %d holds %d triangles, want <= %d", i, n.Count, tt.leafSize)
				}
				for j := n.LeftFirst; j < n.LeftFirst+n.Count; j++ {
					seen[j]++
					b := h.Triangles[j].Bounds()
					if b.Union(n.Bounds) != n.Bounds {
						t.Errorf("triangle %d escapes leaf %d", j, i)
					}
				}
			}
			for i, c := range seen {
				if c != 1 {
					t.Errorf("triangle %d referenced %d times, want 1", i, c)
				}
			}
		})
	}
}

func TestBuildDegenerateCentroids(t *testing.T) {
	tris := make([]Triangle, 20)
	for i := range tris {
		tris[i] = Triangle{V0: mgl32.Vec3{0, 0, 0}, V1: mgl32.Vec3{1, 0, 0}, V2: mgl32.Vec3{0, 1, 0}}
	}
	h := Build(tris, 2)
	if len(h.Nodes) != 1 || h.Nodes[0].Count != 20 {
		t.Errorf("coincident centroids: nodes = %d, root count = %d, want a single leaf of 20",
			len(h.Nodes), h.Nodes[0].Count)
	}
}

func TestIntersectMatchesBruteForce(t *testing.T) {
	h := Build(randomTriangles(300, 7), 4)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		origin := mgl32.Vec3{rng.Float32()*4 - 2, rng.Float32()*4 - 2, -20}
		dir := mgl32.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, 1}.Normalize()

		want := float32(math.MaxFloat32)
		wantHit := false
		for j := range h.Triangles {
			if d, ok := intersectTriangle(&h.Triangles[j], origin, dir); ok && d < want {
				want, wantHit = d, true
			}
		}
		got, _, ok := h.Intersect(origin, dir, math.MaxFloat32)
		if ok != wantHit || (ok && math.Abs(float64(got-want)) > 1e-4) {
			t.Fatalf("ray %d: Intersect() = %v, %v, want %v, %v", i, got, ok, want, wantHit)
		}
	}
}

func TestIntersectAxisAlignedRay(t *testing.T) {
	h := Build([]Triangle{{
		V0: mgl32.Vec3{-1, -1, 5}, V1: mgl32.Vec3{1, -1, 5}, V2: mgl32.Vec3{0, 1, 5},
	}}, 4)
	d, tri, ok := h.Intersect(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, 100)
	if !ok || tri != 0 || math.Abs(float64(d-5)) > 1e-5 {
		t.Errorf("Intersect() = %v, %d, %v, want 5, 0, true", d, tri, ok)
	}
	if _, _, ok := h.Intersect(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, 4); ok {
		t.Error("Intersect() hit beyond tMax")
	}
}

func TestPackNodes(t *testing.T) {
	h := Build(randomTriangles(10, 2), 2)
	data := h.PackNodes()
	if len(data) != len(h.Nodes)*NodeSize {
		t.Fatalf("len(PackNodes()) = %d, want %d", len(data), len(h.Nodes)*NodeSize)
	}
	for i := range h.Nodes {
		n := &h.Nodes[i]
		rec := data[i*NodeSize:]
		minX := math.Float32frombits(binary.LittleEndian.Uint32(rec[0:]))
		second := binary.LittleEndian.Uint32(rec[28:])
		if minX != n.Bounds.Min[0] {
			t.Errorf("node %d min.x = %v, want %v", i, minX, n.Bounds.Min[0])
		}
		if interior := second&interiorFlag != 0; interior == n.IsLeaf() {
			t.Errorf("node %d interior flag = %v, leaf = %v", i, interior, n.IsLeaf())
		}
		if !n.IsLeaf() && second&^uint32(interiorFlag) != n.Right {
			t.Errorf("node %d right = %d, want %d", i, second&^uint32(interiorFlag), n.Right)
		}
	}
	if got := len(h.PackTriangles()); got != 10*TriangleSize {
		t.Errorf("len(PackTriangles()) = %d, want %d", got, 10*TriangleSize)
	}
}
