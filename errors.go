package rodvision

import "errors"

var (
	// ErrInvalidResolution is returned when a capture resolution is not
	// positive or too large to allocate
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidParameters is returned when camera parameters are out of
	// range
	ErrInvalidParameters = errors.New("invalid camera parameters")

	// ErrAllocation is returned when frame buffers can not be allocated
	ErrAllocation = errors.New("frame buffer allocation failed")

	// ErrTimeout is returned by CaptureFrame when no frame completed within
	// the timeout
	ErrTimeout = errors.New("timed out waiting for frame")

	// ErrNotRunning is returned when capturing from, or stopping, an engine
	// that is not running
	ErrNotRunning = errors.New("capture engine not running")

	// ErrRunning is returned when starting an engine that is already running
	ErrRunning = errors.New("capture engine already running")

	// ErrStopped is returned to a CaptureFrame caller woken by Stop
	ErrStopped = errors.New("capture engine stopped")

	// ErrInvalidTransition is returned when a request is moved to a state
	// not reachable from its current state
	ErrInvalidTransition = errors.New("invalid request state transition")

	// ErrQueueFull is returned by a device queue that can hold no more
	// requests
	ErrQueueFull = errors.New("device request queue full")

	// ErrDeviceStopped is returned when queueing to a device that is not
	// streaming
	ErrDeviceStopped = errors.New("device not streaming")
)
