package gpucore

import "sync"

// PropertyID identifies a shader parameter (uniform, texture, buffer or
// acceleration structure slot). IDs are process-wide and stable for the
// lifetime of the process.
type PropertyID uint32

// property intern table.
var (
	propertyMu    sync.RWMutex
	propertyIDs   = make(map[string]PropertyID)
	propertyNames = []string{""} // index 0 is reserved for the invalid property
)

// PropertyToID returns the ID for a shader parameter name, interning the
// name on first use. Calling PropertyToID twice with the same name returns
// the same ID.
//
// PropertyToID is intended to be called once per name, typically from a
// package-level var block; the returned IDs are then used while recording.
func PropertyToID(name string) PropertyID {
	propertyMu.RLock()
	id, ok := propertyIDs[name]
	propertyMu.RUnlock()
	if ok {
		return id
	}

	propertyMu.Lock()
	defer propertyMu.Unlock()
	if id, ok := propertyIDs[name]; ok {
		return id
	}
	id = PropertyID(len(propertyNames)) //nolint:gosec // property count never approaches 2^32
	propertyIDs[name] = id
	propertyNames = append(propertyNames, name)
	return id
}

// PropertyName returns the name a property was interned with, or "" for
// unknown IDs.
func PropertyName(id PropertyID) string {
	propertyMu.RLock()
	defer propertyMu.RUnlock()
	if int(id) >= len(propertyNames) {
		return ""
	}
	return propertyNames[id]
}

// String returns the interned property name.
func (id PropertyID) String() string {
	return PropertyName(id)
}
