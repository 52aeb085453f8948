package rtreflect

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraID identifies a camera context. Filters are attached per camera.
type CameraID uint64

// CameraType classifies the view a camera renders.
type CameraType int

const (
	// CameraTypeGame is a gameplay camera.
	CameraTypeGame CameraType = iota

	// CameraTypeSceneView is an editor scene view.
	CameraTypeSceneView

	// CameraTypePreview is an editor asset preview.
	CameraTypePreview

	// CameraTypeReflection renders a reflection capture.
	CameraTypeReflection
)

// String returns the string representation of CameraType.
func (t CameraType) String() string {
	switch t {
	case CameraTypeGame:
		return "Game"
	case CameraTypeSceneView:
		return "SceneView"
	case CameraTypePreview:
		return "Preview"
	case CameraTypeReflection:
		return "Reflection"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// IsEditorView reports whether the camera is a non-gameplay editor view.
// Editor views without a filter fall back to the default visibility mask.
func (t CameraType) IsEditorView() bool {
	return t == CameraTypeSceneView || t == CameraTypePreview
}

// ParseCameraType parses a camera type name, case-insensitively.
func ParseCameraType(s string) (CameraType, error) {
	switch strings.ToLower(s) {
	case "game":
		return CameraTypeGame, nil
	case "sceneview", "scene":
		return CameraTypeSceneView, nil
	case "preview":
		return CameraTypePreview, nil
	case "reflection":
		return CameraTypeReflection, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCameraType, s)
	}
}

// Camera describes the view reflections are rendered for.
type Camera struct {
	ID   CameraID
	Type CameraType

	// FieldOfView is the vertical field of view in degrees.
	FieldOfView float32

	// ActualWidth and ActualHeight are the viewport size in pixels.
	ActualWidth  int
	ActualHeight int

	// Position is the world-space eye position.
	Position mgl32.Vec3

	// View is the world-to-view transform.
	View mgl32.Mat4

	NearPlane float32
	FarPlane  float32

	// FrameIndex decorrelates noise between frames.
	FrameIndex uint32
}

// NewCamera creates a camera at the origin looking down -Z.
func NewCamera(id CameraID, typ CameraType, fovDegrees float32, width, height int) *Camera {
	return &Camera{
		ID:           id,
		Type:         typ,
		FieldOfView:  fovDegrees,
		ActualWidth:  width,
		ActualHeight: height,
		View:         mgl32.Ident4(),
		NearPlane:    0.1,
		FarPlane:     1000,
	}
}

// LookAt places the camera at eye looking towards center.
func (c *Camera) LookAt(eye, center, up mgl32.Vec3) {
	c.Position = eye
	c.View = mgl32.LookAtV(eye, center, up)
}

// AspectRatio returns width / height, or 1 for an empty viewport.
func (c *Camera) AspectRatio() float32 {
	if c.ActualHeight <= 0 {
		return 1
	}
	return float32(c.ActualWidth) / float32(c.ActualHeight)
}

// Projection returns the perspective projection matrix.
func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FieldOfView), c.AspectRatio(), c.NearPlane, c.FarPlane)
}

// ViewProjection returns Projection * View.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection().Mul4(c.View)
}

// InverseViewProjection maps clip space back to world space. The trace
// kernel uses it to reconstruct world positions from depth.
func (c *Camera) InverseViewProjection() mgl32.Mat4 {
	return c.ViewProjection().Inv()
}

// ScreenSize returns (width, height, 1/width, 1/height).
func (c *Camera) ScreenSize() mgl32.Vec4 {
	w, h := float32(max(c.ActualWidth, 1)), float32(max(c.ActualHeight, 1))
	return mgl32.Vec4{w, h, 1 / w, 1 / h}
}
