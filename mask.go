package rtreflect

import (
	"fmt"
	"math/bits"
)

// VisibilityMask selects which scene layers participate in an acceleration
// structure or light list. Bit i selects layer i.
type VisibilityMask uint32

const (
	// LayerMaskNothing selects no layer.
	LayerMaskNothing VisibilityMask = 0

	// LayerMaskEverything selects every layer. It is the default mask of a
	// new filter.
	LayerMaskEverything VisibilityMask = ^VisibilityMask(0)
)

// MaxLayers is the number of layers a VisibilityMask can address.
const MaxLayers = 32

// LayerMask returns the mask selecting the given layers. Layers outside
// [0, MaxLayers) are ignored.
func LayerMask(layers ...int) VisibilityMask {
	var m VisibilityMask
	for _, l := range layers {
		if l >= 0 && l < MaxLayers {
			m |= 1 << uint(l)
		}
	}
	return m
}

// Has reports whether the mask selects layer.
func (m VisibilityMask) Has(layer int) bool {
	if layer < 0 || layer >= MaxLayers {
		return false
	}
	return m&(1<<uint(layer)) != 0
}

// Intersects reports whether both masks select at least one common layer.
func (m VisibilityMask) Intersects(o VisibilityMask) bool {
	return m&o != 0
}

// Count returns the number of selected layers.
func (m VisibilityMask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// String returns the string representation of VisibilityMask.
func (m VisibilityMask) String() string {
	switch m {
	case LayerMaskEverything:
		return "Everything"
	case LayerMaskNothing:
		return "Nothing"
	default:
		return fmt.Sprintf("0x%08x", uint32(m))
	}
}
