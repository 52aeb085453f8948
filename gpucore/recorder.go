package gpucore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Recorder errors.
var (
	// ErrStreamFinished is returned when commands are recorded after Finish.
	ErrStreamFinished = errors.New("gpucore: command stream already finished")

	// ErrInvalidProgram is returned when a command references InvalidID as program.
	ErrInvalidProgram = errors.New("gpucore: program is invalid")

	// ErrNoOpenSample is returned when EndSample has no matching BeginSample.
	ErrNoOpenSample = errors.New("gpucore: no open profiling sample")

	// ErrUnbalancedSamples is returned by Finish when profiling scopes are left open.
	ErrUnbalancedSamples = errors.New("gpucore: profiling samples left open")
)

// Op identifies a recorded command.
type Op int

// Recorded operations.
const (
	OpSetShaderPass Op = iota
	OpSetAccelerationStructure
	OpSetTexture
	OpSetInt
	OpSetFloat
	OpSetGlobalBuffer
	OpSetGlobalVector
	OpSetGlobalMatrix
	OpSetGlobalInt
	OpUpdateBuffer
	OpDispatchRays
	OpDispatchCompute
	OpBeginSample
	OpEndSample
)

var opNames = [...]string{
	OpSetShaderPass:            "SetShaderPass",
	OpSetAccelerationStructure: "SetAccelerationStructure",
	OpSetTexture:               "SetTexture",
	OpSetInt:                   "SetInt",
	OpSetFloat:                 "SetFloat",
	OpSetGlobalBuffer:          "SetGlobalBuffer",
	OpSetGlobalVector:          "SetGlobalVector",
	OpSetGlobalMatrix:          "SetGlobalMatrix",
	OpSetGlobalInt:             "SetGlobalInt",
	OpUpdateBuffer:             "UpdateBuffer",
	OpDispatchRays:             "DispatchRays",
	OpDispatchCompute:          "DispatchCompute",
	OpBeginSample:              "BeginSample",
	OpEndSample:                "EndSample",
}

// String returns the string representation of Op.
func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Unknown(%d)", int(o))
}

// IsDispatch reports whether the op launches GPU work.
func (o Op) IsDispatch() bool {
	return o == OpDispatchRays || o == OpDispatchCompute
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op       Op
	Program  ProgramID
	Property PropertyID
	Label    string

	Texture   Texture
	Buffer    BufferID
	Structure AccelerationStructureID

	Int    int32
	Float  float32
	Vector mgl32.Vec4
	Matrix mgl32.Mat4

	Offset uint64
	Data   []byte

	X, Y, Z uint32
}

// Recorder is a CommandStream that records commands in memory.
//
// Recorder is used directly by tests and tools, and as the recording front
// end of GPU backends which replay the commands into native encoders.
//
// State machine:
//
//	Recording -> Finish() -> Finished
//	Finished  -> Reset()  -> Recording
//
// Retired resources survive Reset. The owner of the recorder destroys them
// with ReleaseRetired once the commands have executed or been discarded.
type Recorder struct {
	mu       sync.Mutex
	label    string
	commands []Command
	finished bool
	depth    int
	retired  RetireList
}

var _ CommandStream = (*Recorder)(nil)

// NewRecorder creates a recorder in the Recording state.
func NewRecorder(label string) *Recorder {
	return &Recorder{label: label}
}

// Label returns the recorder's debug label.
func (r *Recorder) Label() string {
	return r.label
}

func (r *Recorder) record(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return fmt.Errorf("%s: %w", cmd.Op, ErrStreamFinished)
	}
	switch cmd.Op {
	case OpSetShaderPass, OpSetAccelerationStructure, OpSetTexture, OpSetInt, OpSetFloat,
		OpDispatchRays, OpDispatchCompute:
		if cmd.Program == InvalidID {
			return fmt.Errorf("%s: %w", cmd.Op, ErrInvalidProgram)
		}
	case OpBeginSample:
		r.depth++
	case OpEndSample:
		if r.depth == 0 {
			return ErrNoOpenSample
		}
		r.depth--
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// SetRayTracingShaderPass records a shader pass selection.
func (r *Recorder) SetRayTracingShaderPass(program ProgramID, pass string) error {
	return r.record(Command{Op: OpSetShaderPass, Program: program, Label: pass})
}

// SetAccelerationStructure records an acceleration structure binding.
func (r *Recorder) SetAccelerationStructure(program ProgramID, id PropertyID, as AccelerationStructureID) error {
	return r.record(Command{Op: OpSetAccelerationStructure, Program: program, Property: id, Structure: as})
}

// SetTexture records a texture binding.
func (r *Recorder) SetTexture(program ProgramID, id PropertyID, tex Texture) error {
	return r.record(Command{Op: OpSetTexture, Program: program, Property: id, Texture: tex})
}

// SetInt records an integer parameter.
func (r *Recorder) SetInt(program ProgramID, id PropertyID, v int32) error {
	return r.record(Command{Op: OpSetInt, Program: program, Property: id, Int: v})
}

// SetFloat records a float parameter.
func (r *Recorder) SetFloat(program ProgramID, id PropertyID, v float32) error {
	return r.record(Command{Op: OpSetFloat, Program: program, Property: id, Float: v})
}

// SetGlobalBuffer records a global buffer binding.
func (r *Recorder) SetGlobalBuffer(id PropertyID, buf BufferID) error {
	return r.record(Command{Op: OpSetGlobalBuffer, Property: id, Buffer: buf})
}

// SetGlobalVector records a global vector parameter.
func (r *Recorder) SetGlobalVector(id PropertyID, v mgl32.Vec4) error {
	return r.record(Command{Op: OpSetGlobalVector, Property: id, Vector: v})
}

// SetGlobalMatrix records a global matrix parameter.
func (r *Recorder) SetGlobalMatrix(id PropertyID, m mgl32.Mat4) error {
	return r.record(Command{Op: OpSetGlobalMatrix, Property: id, Matrix: m})
}

// SetGlobalInt records a global integer parameter.
func (r *Recorder) SetGlobalInt(id PropertyID, v int32) error {
	return r.record(Command{Op: OpSetGlobalInt, Property: id, Int: v})
}

// UpdateBuffer records a buffer write. The data is copied.
func (r *Recorder) UpdateBuffer(buf BufferID, offset uint64, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	return r.record(Command{Op: OpUpdateBuffer, Buffer: buf, Offset: offset, Data: cp})
}

// DispatchRays records a ray dispatch.
func (r *Recorder) DispatchRays(program ProgramID, width, height uint32) error {
	return r.record(Command{Op: OpDispatchRays, Program: program, X: width, Y: height, Z: 1})
}

// DispatchCompute records a compute dispatch.
func (r *Recorder) DispatchCompute(program ProgramID, x, y, z uint32) error {
	return r.record(Command{Op: OpDispatchCompute, Program: program, X: x, Y: y, Z: z})
}

// BeginSample records the start of a profiling scope.
func (r *Recorder) BeginSample(name string) error {
	return r.record(Command{Op: OpBeginSample, Label: name})
}

// EndSample records the end of the innermost profiling scope.
func (r *Recorder) EndSample() error {
	return r.record(Command{Op: OpEndSample})
}

// RetireBuffer schedules a buffer for destruction by ReleaseRetired.
func (r *Recorder) RetireBuffer(id BufferID) {
	r.mu.Lock()
	r.retired.Buffer(id)
	r.mu.Unlock()
}

// RetireTexture schedules a texture for destruction by ReleaseRetired.
func (r *Recorder) RetireTexture(id TextureID) {
	r.mu.Lock()
	r.retired.Texture(id)
	r.mu.Unlock()
}

// RetireAccelerationStructure schedules a structure for destruction by
// ReleaseRetired.
func (r *Recorder) RetireAccelerationStructure(id AccelerationStructureID) {
	r.mu.Lock()
	r.retired.AccelerationStructure(id)
	r.mu.Unlock()
}

// Retired returns the number of resources awaiting destruction.
func (r *Recorder) Retired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retired.Len()
}

// ReleaseRetired destroys the retired resources on device and returns how
// many were destroyed.
func (r *Recorder) ReleaseRetired(device Device) int {
	r.mu.Lock()
	l := r.retired
	r.retired = RetireList{}
	r.mu.Unlock()
	return l.Release(device)
}

// Finish ends recording. Further commands fail with ErrStreamFinished.
// Finishing an already finished recorder is a no-op.
func (r *Recorder) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return nil
	}
	r.finished = true
	if r.depth != 0 {
		return fmt.Errorf("%w: %d", ErrUnbalancedSamples, r.depth)
	}
	return nil
}

// IsFinished returns true if Finish has been called.
func (r *Recorder) IsFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Reset discards all commands and returns to the Recording state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = r.commands[:0]
	r.finished = false
	r.depth = 0
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Len returns the number of recorded commands.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

// Dispatches returns the recorded dispatch commands in order.
func (r *Recorder) Dispatches() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Command
	for _, c := range r.commands {
		if c.Op.IsDispatch() {
			out = append(out, c)
		}
	}
	return out
}

// WritesTo reports whether any dispatch could write tex, that is whether
// tex was bound to a write slot of a program that was later dispatched.
// Writability is judged from the slot name convention used by layouts:
// callers pass the set of write slots they care about.
func (r *Recorder) WritesTo(tex TextureID, writeSlots ...PropertyID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bound := make(map[ProgramID]bool)
	for _, c := range r.commands {
		switch {
		case c.Op == OpSetTexture && c.Texture.ID == tex:
			for _, s := range writeSlots {
				if c.Property == s {
					bound[c.Program] = true
				}
			}
		case c.Op.IsDispatch() && bound[c.Program]:
			return true
		}
	}
	return false
}
