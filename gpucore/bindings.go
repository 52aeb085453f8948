package gpucore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrUnboundResource is returned when a dispatch references a resource slot
// that was never bound.
var ErrUnboundResource = errors.New("gpucore: resource slot not bound")

// value is a bound parameter value.
type value struct {
	op        Op
	i         int32
	f         float32
	vec       mgl32.Vec4
	mat       mgl32.Mat4
	texture   Texture
	buffer    BufferID
	structure AccelerationStructureID
}

type bindingKey struct {
	program  ProgramID
	property PropertyID
}

// BindingState tracks parameter values while replaying a recorded stream.
// Backends feed every command to Apply and call Resolve at each dispatch.
type BindingState struct {
	values map[bindingKey]value
	passes map[ProgramID]string
}

// NewBindingState creates an empty binding state.
func NewBindingState() *BindingState {
	return &BindingState{
		values: make(map[bindingKey]value),
		passes: make(map[ProgramID]string),
	}
}

// Apply records the effect of a parameter command. Non-parameter commands
// are ignored.
func (s *BindingState) Apply(c *Command) {
	key := bindingKey{program: c.Program, property: c.Property}
	switch c.Op {
	case OpSetShaderPass:
		s.passes[c.Program] = c.Label
	case OpSetAccelerationStructure:
		s.values[key] = value{op: c.Op, structure: c.Structure}
	case OpSetTexture:
		s.values[key] = value{op: c.Op, texture: c.Texture}
	case OpSetInt, OpSetGlobalInt:
		s.values[key] = value{op: c.Op, i: c.Int}
	case OpSetFloat:
		s.values[key] = value{op: c.Op, f: c.Float}
	case OpSetGlobalBuffer:
		s.values[key] = value{op: c.Op, buffer: c.Buffer}
	case OpSetGlobalVector:
		s.values[key] = value{op: c.Op, vec: c.Vector}
	case OpSetGlobalMatrix:
		s.values[key] = value{op: c.Op, mat: c.Matrix}
	}
}

// ShaderPass returns the shader pass selected for a program.
func (s *BindingState) ShaderPass(program ProgramID) string {
	return s.passes[program]
}

// lookup returns the program-scoped value, falling back to the global one.
func (s *BindingState) lookup(program ProgramID, id PropertyID) (value, bool) {
	if v, ok := s.values[bindingKey{program: program, property: id}]; ok {
		return v, true
	}
	v, ok := s.values[bindingKey{program: InvalidID, property: id}]
	return v, ok
}

// BoundResource is one resolved resource binding.
type BoundResource struct {
	Slot      ResourceSlot
	Texture   Texture
	Buffer    BufferID
	Structure AccelerationStructureID
}

// DispatchBindings is the resolved parameter set for one dispatch.
type DispatchBindings struct {
	// Uniforms is the packed uniform block (see ProgramLayout.UniformBlockSize).
	Uniforms []byte

	// Resources holds one entry per layout resource slot, in layout order.
	Resources []BoundResource
}

// Resolve packs the current values for a program's layout.
// Unset uniforms are packed as zero. Every resource slot must be bound.
func (s *BindingState) Resolve(program ProgramID, layout *ProgramLayout) (*DispatchBindings, error) {
	out := &DispatchBindings{
		Uniforms:  make([]byte, layout.UniformBlockSize()),
		Resources: make([]BoundResource, 0, len(layout.Resources)),
	}

	offset := 0
	for _, u := range layout.Uniforms {
		offset = alignUp(offset, u.Kind.Align())
		if v, ok := s.lookup(program, u.ID); ok {
			packUniform(out.Uniforms[offset:], u.Kind, v)
		}
		offset += u.Kind.Size()
	}

	for _, r := range layout.Resources {
		v, ok := s.lookup(program, r.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundResource, r.ID)
		}
		out.Resources = append(out.Resources, BoundResource{
			Slot:      r,
			Texture:   v.texture,
			Buffer:    v.buffer,
			Structure: v.structure,
		})
	}
	return out, nil
}

func packUniform(dst []byte, kind UniformKind, v value) {
	switch kind {
	case UniformInt:
		i := v.i
		if v.op == OpSetFloat {
			i = int32(v.f)
		}
		binary.LittleEndian.PutUint32(dst, uint32(i)) //nolint:gosec // two's complement bit pattern
	case UniformFloat:
		f := v.f
		if v.op == OpSetInt || v.op == OpSetGlobalInt {
			f = float32(v.i)
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
	case UniformVec4:
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v.vec[i]))
		}
	case UniformMat4:
		// mgl32 matrices are column-major, matching WGSL mat4x4 layout.
		for i := 0; i < 16; i++ {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v.mat[i]))
		}
	}
}
