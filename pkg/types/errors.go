package types

import "errors"

var (
	// ErrNotFound is returned when a device or plan id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for malformed requests such as an unknown
	// demand response event type or an empty time window.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUpstreamUnavailable wraps failures of the persistence or transport
	// collaborators.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrDryRun is returned when an action would send device commands while
	// the dry run setting is on.
	ErrDryRun = errors.New("dry run enabled")
)
