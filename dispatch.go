package rtreflect

import "fmt"

// DenoiseTileSize is the edge length in pixels of one denoise workgroup tile.
const DenoiseTileSize = 8

// TileCount returns the number of tiles of size tile needed to cover dim
// pixels: ceil(dim / tile). It returns 0 for non-positive inputs.
func TileCount(dim, tile int) int {
	if dim <= 0 || tile <= 0 {
		return 0
	}
	return (dim + tile - 1) / tile
}

// DispatchGrid is a compute dispatch size in workgroups.
type DispatchGrid struct {
	X, Y, Z uint32
}

// String returns the grid as "(x,y,z)".
func (g DispatchGrid) String() string {
	return fmt.Sprintf("(%d,%d,%d)", g.X, g.Y, g.Z)
}

// Empty reports whether the grid launches no workgroup.
func (g DispatchGrid) Empty() bool {
	return g.X == 0 || g.Y == 0 || g.Z == 0
}

// TiledDispatch returns the grid covering a width x height image with
// square tiles. Each axis is computed from its own dimension.
func TiledDispatch(width, height, tile int) DispatchGrid {
	return DispatchGrid{
		X: uint32(TileCount(width, tile)),  //nolint:gosec // non-negative
		Y: uint32(TileCount(height, tile)), //nolint:gosec // non-negative
		Z: 1,
	}
}

// DenoiseDispatch returns the denoise grid for an output buffer.
func DenoiseDispatch(width, height int) DispatchGrid {
	return TiledDispatch(width, height, DenoiseTileSize)
}
