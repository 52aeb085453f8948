// Package lightcluster partitions lights into a world-space grid around the
// camera so that reflection hits only evaluate nearby lights.
//
// # Buffer Layout
//
// The cluster buffer is an array of uint32:
//
//	[0..3]  cellsX, cellsY, cellsZ, stride
//	[4..]   one record of stride words per cell: count, index0 .. index(stride-2)
//
// Cells are stored X-major: cell (x, y, z) starts at 4 + ((z*cellsY+y)*cellsX+x)*stride.
//
// The light data buffer holds LightDataSize bytes per light, punctual lights
// first, then area lights:
//
//	vec4 position.xyz, range
//	vec4 color.rgb * intensity, type
//	vec4 direction.xyz, cos(spot half angle)
//	vec4 area size.xy, 0, 0
package lightcluster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/rtreflect"
	"github.com/gogpu/rtreflect/gpucore"
	"github.com/gogpu/rtreflect/internal/mathx"
)

const (
	// HeaderWords is the number of uint32 words before the first cell.
	HeaderWords = 4

	// LightDataSize is the size in bytes of one packed light.
	LightDataSize = 64

	// minLightCapacity is the initial light buffer capacity.
	minLightCapacity = 16
)

// ErrNotInitialized is returned when the cluster is evaluated before Initialize.
var ErrNotInitialized = errors.New("lightcluster: not initialized")

// Cluster is the grid light cluster. It implements rtreflect.LightCluster.
//
// Cluster is not safe for concurrent use.
type Cluster struct {
	cfg    rtreflect.ClusterConfig
	device gpucore.Device

	clusterBuf    gpucore.BufferID
	lightBuf      gpucore.BufferID
	lightCapacity int

	bounds   mathx.AABB
	punctual int
	area     int
	overflow int

	cells []uint32
	data  []byte
}

var _ rtreflect.LightCluster = (*Cluster)(nil)

// New creates an uninitialized cluster.
func New() *Cluster {
	return &Cluster{}
}

// Initialize validates cfg and allocates the cluster and light buffers.
func (c *Cluster) Initialize(cfg rtreflect.ClusterConfig, device gpucore.Device) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	words := HeaderWords + cfg.CellCount()*cfg.CellStride()
	buf, err := device.CreateBuffer(uint64(words)*4, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst, "RaytracingLightCluster") //nolint:gosec // positive
	if err != nil {
		return fmt.Errorf("create cluster buffer: %w", err)
	}
	c.cfg = cfg
	c.device = device
	c.clusterBuf = buf
	c.cells = make([]uint32, words)
	if err := c.ensureLightCapacity(minLightCapacity, nil); err != nil {
		device.DestroyBuffer(buf)
		c.clusterBuf = gpucore.InvalidID
		return err
	}
	rtreflect.Logger().Debug("lightcluster: initialized",
		"cells", fmt.Sprintf("%dx%dx%d", cfg.CellsX, cfg.CellsY, cfg.CellsZ),
		"bytes", words*4)
	return nil
}

// ensureLightCapacity grows the light data buffer to hold n lights. A
// replaced buffer is retired into stream, or destroyed when stream is nil.
func (c *Cluster) ensureLightCapacity(n int, stream gpucore.CommandStream) error {
	if n <= c.lightCapacity && c.lightBuf != gpucore.InvalidID {
		return nil
	}
	capacity := max(c.lightCapacity, minLightCapacity)
	for capacity < n {
		capacity *= 2
	}
	buf, err := c.device.CreateBuffer(uint64(capacity)*LightDataSize, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst, "LightDatasRT") //nolint:gosec // positive
	if err != nil {
		return fmt.Errorf("create light data buffer: %w", err)
	}
	switch {
	case c.lightBuf == gpucore.InvalidID:
	case stream != nil:
		stream.RetireBuffer(c.lightBuf)
	default:
		c.device.DestroyBuffer(c.lightBuf)
	}
	c.lightBuf = buf
	c.lightCapacity = capacity
	return nil
}

// classify orders punctual lights before area lights and drops lights that
// cannot be clustered.
func classify(lights []rtreflect.LightDescriptor) (ordered []rtreflect.LightDescriptor, punctual, area int) {
	ordered = make([]rtreflect.LightDescriptor, 0, len(lights))
	for _, l := range lights {
		if l.Type.IsPunctual() && l.Range > 0 {
			ordered = append(ordered, l)
		}
	}
	punctual = len(ordered)
	for _, l := range lights {
		if l.Type.IsArea() && l.Range > 0 {
			ordered = append(ordered, l)
		}
	}
	return ordered, punctual, len(ordered) - punctual
}

// EvaluateLightClusters rebuilds the grid for lights around camera and
// records the buffer uploads into stream. Directional lights are not
// clustered.
func (c *Cluster) EvaluateLightClusters(stream gpucore.CommandStream, camera *rtreflect.Camera, lights []rtreflect.LightDescriptor) error {
	if c.device == nil {
		return ErrNotInitialized
	}
	ordered, punctual, area := classify(lights)
	if err := c.ensureLightCapacity(len(ordered), stream); err != nil {
		return err
	}

	// The grid covers the camera's neighbourhood, shrunk to the lights in it.
	camBox := mathx.CenteredAABB(camera.Position, c.cfg.ClusterRange)
	lightBox := mathx.EmptyAABB()
	for i := range ordered {
		lightBox = lightBox.Union(lightBounds(&ordered[i]))
	}
	bounds := camBox.Intersect(lightBox)
	if bounds.IsEmpty() {
		bounds = camBox
	}

	c.bounds = bounds
	c.punctual = punctual
	c.area = area
	c.overflow = c.bin(ordered, bounds)
	c.data = packLights(c.data[:0], ordered)

	if c.overflow > 0 {
		rtreflect.Logger().Warn("lightcluster: cells overflowed",
			"dropped", c.overflow, "maxPerCell", c.cfg.MaxLightsPerCell)
	}
	rtreflect.Logger().Debug("lightcluster: evaluated",
		"punctual", punctual, "area", area, "min", bounds.Min, "max", bounds.Max)

	if err := stream.UpdateBuffer(c.clusterBuf, 0, wordsToBytes(c.cells)); err != nil {
		return fmt.Errorf("upload light cluster: %w", err)
	}
	if len(c.data) > 0 {
		if err := stream.UpdateBuffer(c.lightBuf, 0, c.data); err != nil {
			return fmt.Errorf("upload light data: %w", err)
		}
	}
	return nil
}

// lightBounds returns the world-space box a light can affect.
func lightBounds(l *rtreflect.LightDescriptor) mathx.AABB {
	r := l.Range
	if l.Type.IsArea() {
		// Area lights reach Range beyond their emitting surface.
		r += 0.5 * max(l.AreaSize[0], l.AreaSize[1])
	}
	return mathx.SphereBounds(l.Position, r)
}

// bin fills the cell records and returns the number of dropped indices.
func (c *Cluster) bin(lights []rtreflect.LightDescriptor, bounds mathx.AABB) int {
	cfg := c.cfg
	stride := cfg.CellStride()
	clear(c.cells)
	c.cells[0] = uint32(cfg.CellsX) //nolint:gosec // validated positive
	c.cells[1] = uint32(cfg.CellsY) //nolint:gosec // validated positive
	c.cells[2] = uint32(cfg.CellsZ) //nolint:gosec // validated positive
	c.cells[3] = uint32(stride)     //nolint:gosec // validated positive

	dims := [3]int{cfg.CellsX, cfg.CellsY, cfg.CellsZ}
	size := bounds.Size()
	var cellSize mgl32.Vec3
	for a := 0; a < 3; a++ {
		cellSize[a] = size[a] / float32(dims[a])
	}

	overflow := 0
	for idx := range lights {
		lb := lightBounds(&lights[idx]).Intersect(bounds)
		if lb.IsEmpty() {
			continue
		}
		var lo, hi [3]int
		for a := 0; a < 3; a++ {
			lo[a] = cellCoord(lb.Min[a]-bounds.Min[a], cellSize[a], dims[a])
			hi[a] = cellCoord(lb.Max[a]-bounds.Min[a], cellSize[a], dims[a])
		}
		for z := lo[2]; z <= hi[2]; z++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for x := lo[0]; x <= hi[0]; x++ {
					base := HeaderWords + ((z*cfg.CellsY+y)*cfg.CellsX+x)*stride
					n := int(c.cells[base])
					if n >= cfg.MaxLightsPerCell {
						overflow++
						continue
					}
					c.cells[base+1+n] = uint32(idx) //nolint:gosec // light count fits in uint32
					c.cells[base] = uint32(n + 1)   //nolint:gosec // bounded by MaxLightsPerCell
				}
			}
		}
	}
	return overflow
}

// cellCoord maps an offset from the grid origin to a clamped cell index.
func cellCoord(offset, cellSize float32, n int) int {
	if cellSize <= 0 {
		return 0
	}
	i := int(math.Floor(float64(offset / cellSize)))
	return min(max(i, 0), n-1)
}

func packLights(dst []byte, lights []rtreflect.LightDescriptor) []byte {
	var rec [LightDataSize]byte
	for i := range lights {
		l := &lights[i]
		radiance := l.Color.Mul(l.Intensity)
		cosHalf := float32(1)
		if l.Type == rtreflect.LightTypeSpot {
			cosHalf = float32(math.Cos(float64(mgl32.DegToRad(l.SpotAngle)) / 2))
		}
		values := [16]float32{
			l.Position[0], l.Position[1], l.Position[2], l.Range,
			radiance[0], radiance[1], radiance[2], float32(l.Type),
			l.Direction[0], l.Direction[1], l.Direction[2], cosHalf,
			l.AreaSize[0], l.AreaSize[1], 0, 0,
		}
		for j, v := range values {
			binary.LittleEndian.PutUint32(rec[j*4:], math.Float32bits(v))
		}
		dst = append(dst, rec[:]...)
	}
	return dst
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// Cluster returns the cluster buffer.
func (c *Cluster) Cluster() gpucore.BufferID { return c.clusterBuf }

// LightDatas returns the light data buffer.
func (c *Cluster) LightDatas() gpucore.BufferID { return c.lightBuf }

// MinClusterPos returns the minimum corner of the grid.
func (c *Cluster) MinClusterPos() mgl32.Vec4 { return mathx.Point(c.bounds.Min) }

// MaxClusterPos returns the maximum corner of the grid.
func (c *Cluster) MaxClusterPos() mgl32.Vec4 { return mathx.Point(c.bounds.Max) }

// PunctualLightCount returns the number of point and spot lights.
func (c *Cluster) PunctualLightCount() int { return c.punctual }

// AreaLightCount returns the number of rectangle and tube lights.
func (c *Cluster) AreaLightCount() int { return c.area }

// Overflow returns the number of light indices dropped by the last
// evaluation because cells were full.
func (c *Cluster) Overflow() int { return c.overflow }

// CellLights returns the light indices stored in cell (x, y, z) by the last
// evaluation.
func (c *Cluster) CellLights(x, y, z int) []uint32 {
	cfg := c.cfg
	if x < 0 || y < 0 || z < 0 || x >= cfg.CellsX || y >= cfg.CellsY || z >= cfg.CellsZ {
		return nil
	}
	base := HeaderWords + ((z*cfg.CellsY+y)*cfg.CellsX+x)*cfg.CellStride()
	n := int(c.cells[base])
	out := make([]uint32, n)
	copy(out, c.cells[base+1:base+1+n])
	return out
}

// ReleaseResources destroys the GPU buffers.
func (c *Cluster) ReleaseResources() {
	if c.device == nil {
		return
	}
	if c.clusterBuf != gpucore.InvalidID {
		c.device.DestroyBuffer(c.clusterBuf)
	}
	if c.lightBuf != gpucore.InvalidID {
		c.device.DestroyBuffer(c.lightBuf)
	}
	c.clusterBuf = gpucore.InvalidID
	c.lightBuf = gpucore.InvalidID
	c.lightCapacity = 0
	c.cells = nil
	c.device = nil
}
