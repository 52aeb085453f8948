package mathx

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestEmptyAABBUnion(t *testing.T) {
	b := EmptyAABB()
	if !b.IsEmpty() {
		t.Fatal("EmptyAABB().IsEmpty() = false")
	}
	b = b.Extend(mgl32.Vec3{1, 2, 3}).Extend(mgl32.Vec3{-1, 0, 5})
	want := AABB{Min: mgl32.Vec3{-1, 0, 3}, Max: mgl32.Vec3{1, 2, 5}}
	if b != want {
		t.Errorf("Extend() = %v, want %v", b, want)
	}
}

func TestAABBIntersect(t *testing.T) {
	a := CenteredAABB(mgl32.Vec3{}, 2)
	b := AABB{Min: mgl32.Vec3{1, 1, 1}, Max: mgl32.Vec3{4, 4, 4}}
	got := a.Intersect(b)
	want := AABB{Min: mgl32.Vec3{1, 1, 1}, Max: mgl32.Vec3{2, 2, 2}}
	if got != want {
		t.Errorf("Intersect() = %v, want %v", got, want)
	}

	far := AABB{Min: mgl32.Vec3{10, 10, 10}, Max: mgl32.Vec3{11, 11, 11}}
	if !a.Intersect(far).IsEmpty() {
		t.Error("Intersect() of disjoint boxes is not empty")
	}
}

func TestLongestAxis(t *testing.T) {
	tests := []struct {
		size mgl32.Vec3
		want int
	}{
		{mgl32.Vec3{3, 1, 1}, 0},
		{mgl32.Vec3{1, 3, 1}, 1},
		{mgl32.Vec3{1, 1, 3}, 2},
		{mgl32.Vec3{2, 2, 2}, 0},
	}
	for _, tt := range tests {
		b := AABB{Max: tt.size}
		if got := b.LongestAxis(); got != tt.want {
			t.Errorf("LongestAxis(%v) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestCenterAndSize(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{-2, 0, 2}, Max: mgl32.Vec3{2, 4, 4}}
	if got := b.Center(); got != (mgl32.Vec3{0, 2, 3}) {
		t.Errorf("Center() = %v", got)
	}
	if got := b.Size(); got != (mgl32.Vec3{4, 4, 2}) {
		t.Errorf("Size() = %v", got)
	}
}
