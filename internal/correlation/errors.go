package correlation

import "errors"

// Sentinel errors for correlation operations.
//
//	if errors.Is(err, correlation.ErrTimeout) {
//	    // device did not answer in time
//	}
var (
	// ErrNotConnected is returned when the broker link is down.
	ErrNotConnected = errors.New("correlation: transport not connected")

	// ErrDuplicateRequest is returned when a wait on the same topic is
	// already pending. The earlier wait is left untouched.
	ErrDuplicateRequest = errors.New("correlation: request already pending for topic")

	// ErrTimeout is returned when no matching message arrived before the deadline.
	ErrTimeout = errors.New("correlation: timeout waiting for reply")

	// ErrMalformedReply is returned when a reply is not a JSON object.
	ErrMalformedReply = errors.New("correlation: malformed reply")

	// ErrUnknownDevice is returned when the device ID is not in the registry.
	ErrUnknownDevice = errors.New("correlation: unknown device")

	// ErrMissingTopic is returned when the device lacks a topic the operation needs.
	ErrMissingTopic = errors.New("correlation: device has no such topic")

	// ErrInvalidTimeout is returned for a non-positive timeout.
	ErrInvalidTimeout = errors.New("correlation: timeout must be positive")
)
