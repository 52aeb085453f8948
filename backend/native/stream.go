package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rtreflect/gpucore"
)

// Stream implements gpucore.CommandStream for a Device.
//
// Commands are recorded by the embedded gpucore.Recorder and replayed into
// a single HAL command encoder by Submit, so their GPU execution order is
// their recording order. Buffer updates are staged and copied inside the
// encoder, which keeps them ordered relative to the dispatches around them.
//
// Stream is NOT safe for concurrent use.
type Stream struct {
	*gpucore.Recorder
	device *Device
}

var _ gpucore.CommandStream = (*Stream)(nil)

// NewStream creates a stream that submits to device.
func NewStream(device *Device, label string) *Stream {
	return &Stream{
		Recorder: gpucore.NewRecorder(label),
		device:   device,
	}
}

// transients are per-submission resources destroyed once the GPU is done.
type transients struct {
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
}

func (t *transients) release(device hal.Device) {
	for _, bg := range t.bindGroups {
		device.DestroyBindGroup(bg)
	}
	for _, b := range t.buffers {
		device.DestroyBuffer(b)
	}
	t.bindGroups = nil
	t.buffers = nil
}

// Submit finishes recording, encodes every command, submits the work and
// waits for it to complete. The stream is reset afterwards and can record
// the next frame. An empty stream submits nothing.
//
// Resources retired into the stream are destroyed once the work completes
// or is discarded. After a GPU timeout they are kept until a later Submit.
func (s *Stream) Submit() (err error) {
	defer func() {
		if !errors.Is(err, ErrGPUTimeout) {
			s.ReleaseRetired(s.device)
		}
	}()
	if err := s.Finish(); err != nil {
		s.Reset()
		return err
	}
	defer s.Reset()

	commands := s.Commands()
	if len(commands) == 0 {
		return nil
	}

	d := s.device
	var tmp transients
	defer tmp.release(d.device)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: s.Label()})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(s.Label()); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	state := gpucore.NewBindingState()
	var samples []string
	dispatches := 0
	for i := range commands {
		c := &commands[i]
		switch {
		case c.Op == gpucore.OpUpdateBuffer:
			if err := s.encodeUpdate(encoder, c, &tmp); err != nil {
				encoder.DiscardEncoding()
				return err
			}
		case c.Op.IsDispatch():
			label := s.Label()
			if len(samples) > 0 {
				label = samples[len(samples)-1]
			}
			if err := s.encodeDispatch(encoder, state, c, label, &tmp); err != nil {
				encoder.DiscardEncoding()
				return err
			}
			dispatches++
		case c.Op == gpucore.OpBeginSample:
			samples = append(samples, c.Label)
		case c.Op == gpucore.OpEndSample:
			if len(samples) > 0 {
				samples = samples[:len(samples)-1]
			}
		default:
			state.Apply(c)
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}
	slogger().Debug("native: stream submitted",
		"label", s.Label(), "commands", len(commands), "dispatches", dispatches)
	return nil
}

// encodeUpdate stages c.Data and copies it into the target buffer.
func (s *Stream) encodeUpdate(encoder hal.CommandEncoder, c *gpucore.Command, tmp *transients) error {
	d := s.device
	dst, ok := d.lookupBuffer(c.Buffer)
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrResourceNotFound, c.Buffer)
	}
	if len(c.Data) == 0 {
		return nil
	}
	size := alignSize(uint64(len(c.Data)))
	if c.Offset%4 != 0 || c.Offset+size > dst.size {
		return fmt.Errorf("%w: update of %d bytes at %d into %d-byte buffer",
			ErrDataSizeMismatch, len(c.Data), c.Offset, dst.size)
	}
	staging, err := d.createBuffer(size, gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst, "rtreflect_update")
	if err != nil {
		return err
	}
	tmp.buffers = append(tmp.buffers, staging.buf)

	data := c.Data
	if uint64(len(data)) != size {
		data = make([]byte, size)
		copy(data, c.Data)
	}
	d.queue.WriteBuffer(staging.buf, 0, data)
	encoder.CopyBufferToBuffer(staging.buf, dst.buf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: c.Offset, Size: size},
	})
	return nil
}

// encodeDispatch resolves the program bindings and records one compute
// pass.
func (s *Stream) encodeDispatch(encoder hal.CommandEncoder, state *gpucore.BindingState, c *gpucore.Command, label string, tmp *transients) error {
	d := s.device
	p, ok := d.lookupProgram(c.Program)
	if !ok {
		return fmt.Errorf("%s: %w: program %d", c.Op, ErrResourceNotFound, c.Program)
	}
	bindings, err := state.Resolve(c.Program, &p.desc.Layout)
	if err != nil {
		return fmt.Errorf("%s (%s): %w", c.Op, p.desc.Label, err)
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(bindings.Resources)+2)
	if hasUniforms(&p.desc.Layout) {
		ub, err := d.createBuffer(uint64(len(bindings.Uniforms)),
			gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst, p.desc.Label+"_params")
		if err != nil {
			return err
		}
		tmp.buffers = append(tmp.buffers, ub.buf)
		d.queue.WriteBuffer(ub.buf, 0, bindings.Uniforms)
		entries = append(entries, bufferEntry(0, ub))
	}

	binding := uint32(1)
	for _, r := range bindings.Resources {
		switch r.Slot.Kind {
		case gpucore.ResourceAccelerationStructure:
			st, ok := d.lookupStructure(r.Structure)
			if !ok {
				return fmt.Errorf("%s (%s): %w: structure %d for %s",
					c.Op, p.desc.Label, ErrResourceNotFound, r.Structure, r.Slot.ID)
			}
			entries = append(entries, bufferEntry(binding, st.nodes), bufferEntry(binding+1, st.tris))
			binding += 2
		case gpucore.ResourceBuffer:
			b, ok := d.lookupBuffer(r.Buffer)
			if !ok {
				return fmt.Errorf("%s (%s): %w: buffer %d for %s",
					c.Op, p.desc.Label, ErrResourceNotFound, r.Buffer, r.Slot.ID)
			}
			entries = append(entries, bufferEntry(binding, b))
			binding++
		default:
			t, ok := d.lookupTexture(r.Texture.ID)
			if !ok {
				return fmt.Errorf("%s (%s): %w: texture %d for %s",
					c.Op, p.desc.Label, ErrResourceNotFound, r.Texture.ID, r.Slot.ID)
			}
			entries = append(entries, bufferEntry(binding, t))
			binding++
		}
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.desc.Label + "_bind",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group for %s: %w", p.desc.Label, err)
	}
	tmp.bindGroups = append(tmp.bindGroups, bg)

	x, y, z := c.X, c.Y, c.Z
	if c.Op == gpucore.OpDispatchRays {
		x, y, z = rayWorkgroups(&p.desc.Layout, c.X, c.Y)
	}
	if x == 0 || y == 0 || z == 0 {
		return nil
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(x, y, z)
	pass.End()
	return nil
}

// rayWorkgroups maps a width*height ray launch onto the program's
// workgroups.
func rayWorkgroups(layout *gpucore.ProgramLayout, width, height uint32) (x, y, z uint32) {
	wx, wy := layout.WorkgroupSize[0], layout.WorkgroupSize[1]
	if wx == 0 {
		wx = 8
	}
	if wy == 0 {
		wy = 8
	}
	return (width + wx - 1) / wx, (height + wy - 1) / wy, 1
}

func bufferEntry(binding uint32, b buffer) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.size},
	}
}
