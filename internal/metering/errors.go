package metering

import "errors"

var (
	// ErrResourceBusy is returned when a start is requested for a resource
	// that already has a Running or unacknowledged Expired session.
	ErrResourceBusy = errors.New("resource already has an active session")

	// ErrInvalidDuration is returned when a countdown start carries a
	// non-positive planned duration.
	ErrInvalidDuration = errors.New("planned duration must be positive")

	// ErrUnknownSession is returned when the session id is not tracked.
	ErrUnknownSession = errors.New("unknown session")

	// ErrUnknownResource is returned when the catalog has no such resource.
	ErrUnknownResource = errors.New("unknown resource")
)
