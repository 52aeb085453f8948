// Package mathx provides small geometry helpers on top of mgl32.
package mathx

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box. The zero value is not empty;
// use EmptyAABB to start a union.
type AABB struct {
	Min, Max mgl32.Vec3
}

// EmptyAABB returns a box that contains nothing and grows to fit the
// first point or box merged into it.
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// CenteredAABB returns the cube of the given half extent around center.
func CenteredAABB(center mgl32.Vec3, halfExtent float32) AABB {
	h := mgl32.Vec3{halfExtent, halfExtent, halfExtent}
	return AABB{Min: center.Sub(h), Max: center.Add(h)}
}

// IsEmpty reports whether the box contains no point.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows the box to contain p.
func (b AABB) Extend(p mgl32.Vec3) AABB {
	return AABB{Min: MinVec(b.Min, p), Max: MaxVec(b.Max, p)}
}

// Union returns the smallest box containing both boxes.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: MinVec(b.Min, o.Min), Max: MaxVec(b.Max, o.Max)}
}

// Intersect returns the overlap of both boxes. The result may be empty.
func (b AABB) Intersect(o AABB) AABB {
	return AABB{Min: MaxVec(b.Min, o.Min), Max: MinVec(b.Max, o.Max)}
}

// Size returns the box extent along each axis.
func (b AABB) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Center returns the box centre.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// LongestAxis returns 0, 1 or 2 for the axis with the largest extent.
func (b AABB) LongestAxis() int {
	s := b.Size()
	axis := 0
	if s[1] > s[axis] {
		axis = 1
	}
	if s[2] > s[axis] {
		axis = 2
	}
	return axis
}

// SphereBounds returns the bounding box of a sphere.
func SphereBounds(center mgl32.Vec3, radius float32) AABB {
	return CenteredAABB(center, radius)
}

// MinVec returns the component-wise minimum.
func MinVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

// MaxVec returns the component-wise maximum.
func MaxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}

// Point returns the homogeneous point (v, 1).
func Point(v mgl32.Vec3) mgl32.Vec4 {
	return v.Vec4(1)
}
