package accel

import (
	"encoding/binary"
	"math"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/internal/mathx"
)

const (
	// NodeSize is the size in bytes of one packed BVH node.
	NodeSize = 32

	// TriangleSize is the size in bytes of one packed triangle.
	TriangleSize = 64

	// DefaultLeafSize is the number of triangles below which the builder
	// stops splitting.
	DefaultLeafSize = 4

	// maxDepth bounds recursion for degenerate inputs where every centroid
	// coincides.
	maxDepth = 48
)

// Triangle is a world-space triangle with a surface albedo.
type Triangle struct {
	V0, V1, V2 mgl32.Vec3
	Albedo     mgl32.Vec4
}

// Bounds returns the triangle's bounding box.
func (t *Triangle) Bounds() mathx.AABB {
	return mathx.AABB{
		Min: mathx.MinVec(mathx.MinVec(t.V0, t.V1), t.V2),
		Max: mathx.MaxVec(mathx.MaxVec(t.V0, t.V1), t.V2),
	}
}

// Centroid returns the triangle's barycenter.
func (t *Triangle) Centroid() mgl32.Vec3 {
	return t.V0.Add(t.V1).Add(t.V2).Mul(1.0 / 3.0)
}

// Node is a flattened BVH node.
//
// Interior nodes store their child indices in LeftFirst and Right. Leaf
// nodes store the index of their first triangle in LeftFirst and the
// number of triangles in Count. A node is a leaf when Count > 0.
type Node struct {
	Bounds    mathx.AABB
	LeftFirst uint32
	Count     uint32
	Right     uint32
}

// IsLeaf reports whether n references triangles.
func (n *Node) IsLeaf() bool { return n.Count > 0 }

// BVH is a bounding volume hierarchy over a triangle list. Triangles are
// reordered so that every leaf references a contiguous range.
type BVH struct {
	Nodes     []Node
	Triangles []Triangle
	Depth     int
}

type bvhBuilder struct {
	tris     []Triangle
	nodes    []Node
	leafSize int
	depth    int
}

// Build constructs a BVH over tris using median splits along the longest
// axis of each node's centroid bounds. tris is reordered in place.
func Build(tris []Triangle, leafSize int) *BVH {
	if leafSize < 1 {
		leafSize = DefaultLeafSize
	}
	b := &bvhBuilder{
		tris:     tris,
		nodes:    make([]Node, 0, 2*len(tris)/leafSize+1),
		leafSize: leafSize,
	}
	start := time.Now()
	if len(tris) > 0 {
		b.partition(0, len(tris), 0)
	}
	rtreflect.Logger().Debug("accel: bvh built",
		"triangles", len(tris), "nodes", len(b.nodes), "depth", b.depth,
		"elapsed", time.Since(start))
	return &BVH{Nodes: b.nodes, Triangles: b.tris, Depth: b.depth}
}

// partition builds the subtree over tris[first:first+count] and returns its
// node index.
func (b *bvhBuilder) partition(first, count, depth int) uint32 {
	b.depth = max(b.depth, depth)

	bounds := mathx.EmptyAABB()
	centroids := mathx.EmptyAABB()
	for i := first; i < first+count; i++ {
		bounds = bounds.Union(b.tris[i].Bounds())
		centroids = centroids.Extend(b.tris[i].Centroid())
	}

	index := uint32(len(b.nodes)) //nolint:gosec // node count fits in uint32
	b.nodes = append(b.nodes, Node{Bounds: bounds})

	axis := centroids.LongestAxis()
	if count <= b.leafSize || depth >= maxDepth || centroids.Size()[axis] <= 0 {
		b.nodes[index].LeftFirst = uint32(first) //nolint:gosec // triangle count fits in uint32
		b.nodes[index].Count = uint32(count)     //nolint:gosec // triangle count fits in uint32
		return index
	}

	// Median split: order the range by centroid along the axis and cut it
	// in half.
	span := b.tris[first : first+count]
	slices.SortFunc(span, func(x, y Triangle) int {
		cx, cy := x.Centroid()[axis], y.Centroid()[axis]
		switch {
		case cx < cy:
			return -1
		case cx > cy:
			return 1
		}
		return 0
	})
	half := count / 2

	left := b.partition(first, half, depth+1)
	right := b.partition(first+half, count-half, depth+1)
	b.nodes[index].LeftFirst = left
	b.nodes[index].Right = right
	return index
}

// Bounds returns the bounds of the whole hierarchy.
func (h *BVH) Bounds() mathx.AABB {
	if len(h.Nodes) == 0 {
		return mathx.EmptyAABB()
	}
	return h.Nodes[0].Bounds
}

// PackNodes encodes the nodes for upload:
//
//	vec3 min, u32 leftFirst
//	vec3 max, u32 count (leaf) or right child index (interior) with the
//	high bit set
//
// Leaves are distinguished from interior nodes by the high bit of the
// second word: it is set for interior nodes.
func (h *BVH) PackNodes() []byte {
	out := make([]byte, len(h.Nodes)*NodeSize)
	for i := range h.Nodes {
		n := &h.Nodes[i]
		rec := out[i*NodeSize:]
		second := n.Count
		if !n.IsLeaf() {
			second = n.Right | interiorFlag
		}
		putVec3(rec[0:], n.Bounds.Min)
		binary.LittleEndian.PutUint32(rec[12:], n.LeftFirst)
		putVec3(rec[16:], n.Bounds.Max)
		binary.LittleEndian.PutUint32(rec[28:], second)
	}
	return out
}

// interiorFlag marks the second word of an interior node.
const interiorFlag = 1 << 31

// PackTriangles encodes the triangles for upload as four vec4 per
// triangle: v0, v1, v2 (w unused) and albedo.
func (h *BVH) PackTriangles() []byte {
	out := make([]byte, len(h.Triangles)*TriangleSize)
	for i := range h.Triangles {
		t := &h.Triangles[i]
		rec := out[i*TriangleSize:]
		putVec3(rec[0:], t.V0)
		putVec3(rec[16:], t.V1)
		putVec3(rec[32:], t.V2)
		for j := 0; j < 4; j++ {
			binary.LittleEndian.PutUint32(rec[48+j*4:], math.Float32bits(t.Albedo[j]))
		}
	}
	return out
}

// Intersect returns the distance to the closest hit along the ray and the
// index of the hit triangle, or ok == false on a miss. It walks the same
// layout the trace kernel consumes and serves as its CPU reference.
func (h *BVH) Intersect(origin, dir mgl32.Vec3, tMax float32) (t float32, tri int, ok bool) {
	if len(h.Nodes) == 0 {
		return 0, -1, false
	}
	inv := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
	best := tMax
	tri = -1

	stack := make([]uint32, 0, 2*h.Depth+2)
	stack = append(stack, 0)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &h.Nodes[idx]
		if !slabHit(n.Bounds, origin, inv, best) {
			continue
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.LeftFirst)
			continue
		}
		for i := n.LeftFirst; i < n.LeftFirst+n.Count; i++ {
			if d, hit := intersectTriangle(&h.Triangles[i], origin, dir); hit && d < best {
				best = d
				tri = int(i)
			}
		}
	}
	return best, tri, tri >= 0
}

func slabHit(b mathx.AABB, origin, inv mgl32.Vec3, tMax float32) bool {
	tmin, tmax := float32(0), tMax
	for a := 0; a < 3; a++ {
		if math.IsInf(float64(inv[a]), 0) {
			// Parallel to the slab.
			if origin[a] < b.Min[a] || origin[a] > b.Max[a] {
				return false
			}
			continue
		}
		t0 := (b.Min[a] - origin[a]) * inv[a]
		t1 := (b.Max[a] - origin[a]) * inv[a]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = max(tmin, t0)
		tmax = min(tmax, t1)
		if tmax < tmin {
			return false
		}
	}
	return true
}

// intersectTriangle is the Moller-Trumbore test.
func intersectTriangle(t *Triangle, origin, dir mgl32.Vec3) (float32, bool) {
	const eps = 1e-7
	e1 := t.V1.Sub(t.V0)
	e2 := t.V2.Sub(t.V0)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return 0, false
	}
	invDet := 1 / det
	s := origin.Sub(t.V0)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}
	d := e2.Dot(q) * invDet
	return d, d > eps
}

func putVec3(dst []byte, v mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v[i]))
	}
}
