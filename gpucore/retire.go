package gpucore

// RetireList holds resources whose destruction waits for a frame boundary.
//
// A resource bound by a recorded command must stay alive until that
// command has executed or been discarded. Owners that replace such a
// resource mid-frame retire the old one instead of destroying it.
//
// RetireList is NOT safe for concurrent use; its owner provides locking.
type RetireList struct {
	buffers    []BufferID
	textures   []TextureID
	structures []AccelerationStructureID
}

// Buffer retires a buffer. InvalidID is ignored.
func (l *RetireList) Buffer(id BufferID) {
	if id != InvalidID {
		l.buffers = append(l.buffers, id)
	}
}

// Texture retires a texture. InvalidID is ignored.
func (l *RetireList) Texture(id TextureID) {
	if id != InvalidID {
		l.textures = append(l.textures, id)
	}
}

// AccelerationStructure retires a structure. InvalidID is ignored.
func (l *RetireList) AccelerationStructure(id AccelerationStructureID) {
	if id != InvalidID {
		l.structures = append(l.structures, id)
	}
}

// Len returns the number of retired resources.
func (l *RetireList) Len() int {
	return len(l.buffers) + len(l.textures) + len(l.structures)
}

// MoveTo hands every retired resource to stream and empties the list.
func (l *RetireList) MoveTo(stream CommandStream) {
	for _, id := range l.buffers {
		stream.RetireBuffer(id)
	}
	for _, id := range l.textures {
		stream.RetireTexture(id)
	}
	for _, id := range l.structures {
		stream.RetireAccelerationStructure(id)
	}
	*l = RetireList{}
}

// Release destroys every retired resource on device, empties the list and
// returns the number of resources destroyed.
func (l *RetireList) Release(device Device) int {
	n := l.Len()
	for _, id := range l.buffers {
		device.DestroyBuffer(id)
	}
	for _, id := range l.textures {
		device.DestroyTexture(id)
	}
	for _, id := range l.structures {
		device.DestroyAccelerationStructure(id)
	}
	*l = RetireList{}
	return n
}
