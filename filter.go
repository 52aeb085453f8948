package rtreflect

import "sync/atomic"

// Filter marks a camera context that wants ray-traced reflections and
// selects the scene layers its acceleration structure covers.
//
// A Filter does not register itself: whoever owns the camera context calls
// Attach when the context becomes active and Detach when it is torn down.
// The registry keeps a non-owning reference between the two calls.
type Filter struct {
	camera   CameraID
	mask     atomic.Uint32
	obsolete atomic.Bool
}

// NewFilter creates a filter for a camera. A zero mask is replaced by
// LayerMaskEverything.
func NewFilter(camera CameraID, mask VisibilityMask) *Filter {
	if mask == LayerMaskNothing {
		mask = LayerMaskEverything
	}
	f := &Filter{camera: camera}
	f.mask.Store(uint32(mask))
	return f
}

// Camera returns the camera the filter belongs to.
func (f *Filter) Camera() CameraID {
	return f.camera
}

// Mask returns the filter's visibility mask.
func (f *Filter) Mask() VisibilityMask {
	return VisibilityMask(f.mask.Load())
}

// SetMask changes the visibility mask and requests a rebuild of the
// structure for the new mask.
func (f *Filter) SetMask(m VisibilityMask) {
	if VisibilityMask(f.mask.Swap(uint32(m))) != m {
		f.obsolete.Store(true)
	}
}

// SetObsolete requests a rebuild of the acceleration structure for the
// filter's mask. It is a pure signal; nothing is rebuilt immediately.
func (f *Filter) SetObsolete() {
	f.obsolete.Store(true)
}

// IsObsolete reports whether a rebuild has been requested.
func (f *Filter) IsObsolete() bool {
	return f.obsolete.Load()
}

// ResetObsolete clears the rebuild request.
func (f *Filter) ResetObsolete() {
	f.obsolete.Store(false)
}

// Attach registers the filter with r.
// Attach must be called at most once per activation.
func (f *Filter) Attach(r *FilterRegistry) {
	r.Register(f)
}

// Detach unregisters the filter from r. Detaching a filter that is not
// registered is a no-op.
func (f *Filter) Detach(r *FilterRegistry) {
	r.Unregister(f)
}
