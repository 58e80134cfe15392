package center

import "errors"

var (
	// ErrCenterStopped is returned by entry points called after Stop.
	ErrCenterStopped = errors.New("campaigns center stopped")
	// ErrNotStarted is returned by entry points called before Start.
	ErrNotStarted = errors.New("campaigns center not started")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("campaigns center already started")
	// ErrTrackingDisabled is returned when the host disallows tracking.
	ErrTrackingDisabled = errors.New("tracking disabled")
	// ErrNoRemote is returned by Refresh when no server client is configured.
	ErrNoRemote = errors.New("no remote client configured")
	// ErrNoOutput is returned when a campaign should be displayed but no
	// Output is configured.
	ErrNoOutput = errors.New("no output configured")
)
