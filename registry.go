package rtreflect

import (
	"sync"

	"github.com/gogpu/rtreflect/gpucore"
)

// FilterRegistry tracks the live filters and resolves acceleration
// structures for their masks through a provider.
//
// The registry holds non-owning references. Registration changes must not
// happen while a RenderReflections call for the same camera is in flight;
// the internal lock only protects the registry's own bookkeeping.
type FilterRegistry struct {
	mu       sync.RWMutex
	filters  []*Filter
	provider AccelerationStructureProvider
}

// NewFilterRegistry creates an empty registry that resolves structures
// through provider. provider may be nil and set later with SetProvider.
func NewFilterRegistry(provider AccelerationStructureProvider) *FilterRegistry {
	return &FilterRegistry{provider: provider}
}

// SetProvider replaces the acceleration structure provider.
func (r *FilterRegistry) SetProvider(p AccelerationStructureProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider = p
}

// Register adds f to the active set.
//
// Registering the same filter twice is a caller error: the registry does
// not deduplicate and the second entry stays until a matching Unregister.
func (r *FilterRegistry) Register(f *Filter) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.filters {
		if existing == f {
			Logger().Debug("rtreflect: filter registered twice",
				"camera", f.camera, "mask", f.Mask())
			break
		}
	}
	r.filters = append(r.filters, f)
}

// Unregister removes one entry for f. It is a no-op if f is not registered.
func (r *FilterRegistry) Unregister(f *Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.filters {
		if existing == f {
			r.filters = append(r.filters[:i], r.filters[i+1:]...)
			return
		}
	}
}

// MarkObsolete requests a rebuild of the structure associated with f's mask.
func (r *FilterRegistry) MarkObsolete(f *Filter) {
	f.SetObsolete()
}

// IsObsolete reports whether a rebuild was requested for f. The flag is
// independent of registration state.
func (r *FilterRegistry) IsObsolete(f *Filter) bool {
	return f.IsObsolete()
}

// ClearObsolete resets f's rebuild request. The rebuild owner calls it
// after honoring the request.
func (r *FilterRegistry) ClearObsolete(f *Filter) {
	f.ResetObsolete()
}

// FilterFor returns the first registered filter attached to camera.
func (r *FilterRegistry) FilterFor(camera CameraID) (*Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.filters {
		if f.camera == camera {
			return f, true
		}
	}
	return nil, false
}

// Filters returns a snapshot of the registered filters in registration order.
func (r *FilterRegistry) Filters() []*Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Filter, len(r.filters))
	copy(out, r.filters)
	return out
}

// Len returns the number of registered entries.
func (r *FilterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filters)
}

// ObsoleteFilters returns the registered filters whose mask equals mask
// and which requested a rebuild.
func (r *FilterRegistry) ObsoleteFilters(mask VisibilityMask) []*Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Filter
	for _, f := range r.filters {
		if f.Mask() == mask && f.IsObsolete() {
			out = append(out, f)
		}
	}
	return out
}

// ObsoleteMasks returns the distinct masks of registered filters that
// requested a rebuild.
func (r *FilterRegistry) ObsoleteMasks() []VisibilityMask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[VisibilityMask]bool)
	var out []VisibilityMask
	for _, f := range r.filters {
		m := f.Mask()
		if f.IsObsolete() && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// HasAccelerationStructure reports whether the provider resolves a
// structure for mask.
func (r *FilterRegistry) HasAccelerationStructure(mask VisibilityMask) bool {
	r.mu.RLock()
	p := r.provider
	r.mu.RUnlock()
	if p == nil {
		return false
	}
	return p.RequestAccelerationStructure(mask) != gpucore.InvalidID
}
