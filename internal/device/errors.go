package device

import "errors"

var (
	// ErrMissingURL indicates that no device address was configured.
	ErrMissingURL = errors.New("device url is required")
	// ErrAlreadyStarted is returned by Start on a running client.
	ErrAlreadyStarted = errors.New("client already started")
	// ErrStopped is returned by Start after Stop has been called.
	ErrStopped = errors.New("client stopped")
)
