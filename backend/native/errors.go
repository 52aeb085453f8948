package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNilDevice is returned when a device or queue is missing.
	ErrNilDevice = errors.New("native: device is nil")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL device and queue.
	ErrNoHALProvider = errors.New("native: provider does not expose HAL types")

	// ErrResourceNotFound is returned when an ID does not name a live
	// resource of the expected kind.
	ErrResourceNotFound = errors.New("native: resource not found")

	// ErrInvalidSize is returned for empty buffers or textures.
	ErrInvalidSize = errors.New("native: invalid size")

	// ErrDataSizeMismatch is returned when uploaded data does not match the
	// destination size.
	ErrDataSizeMismatch = errors.New("native: data size mismatch")

	// ErrGPUTimeout is returned when a submission does not complete in time.
	ErrGPUTimeout = errors.New("native: timed out waiting for GPU")
)
