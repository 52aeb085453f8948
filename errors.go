package rtreflect

import "errors"

// Configuration errors.
var (
	// ErrInvalidEnvironment is returned when an Environment fails validation.
	ErrInvalidEnvironment = errors.New("rtreflect: invalid environment")

	// ErrInvalidViewport is returned for non-positive viewport sizes.
	ErrInvalidViewport = errors.New("rtreflect: invalid viewport size")

	// ErrInvalidClusterConfig is returned when a ClusterConfig fails validation.
	ErrInvalidClusterConfig = errors.New("rtreflect: invalid light cluster config")

	// ErrUnknownCameraType is returned by ParseCameraType.
	ErrUnknownCameraType = errors.New("rtreflect: unknown camera type")
)

// Lifecycle errors.
var (
	// ErrNotInitialized is returned when the pass is used before Initialize.
	ErrNotInitialized = errors.New("rtreflect: reflection pass not initialized")

	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("rtreflect: reflection pass already initialized")

	// ErrMissingDependency is returned when a required collaborator is nil.
	ErrMissingDependency = errors.New("rtreflect: missing dependency")
)
