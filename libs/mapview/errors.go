package mapview

import "errors"

var (
	// ErrMarkerNotFound means no live marker lies within tolerance of the target.
	ErrMarkerNotFound = errors.New("mapview: marker not found")
	// ErrRevealTimeout means the surface did not show the marker individually
	// before the reveal deadline.
	ErrRevealTimeout = errors.New("mapview: reveal timed out")
	// ErrUnknownMarker means the marker ID does not belong to the live set.
	ErrUnknownMarker = errors.New("mapview: unknown marker")
	// ErrMarkerDetached means the marker is not attached to the surface.
	ErrMarkerDetached = errors.New("mapview: marker not attached")
	// ErrInvalidDirection is returned for pagination steps other than +1 or -1.
	ErrInvalidDirection = errors.New("mapview: direction must be +1 or -1")
	// ErrStaleFetch means a newer fetch was started after this one.
	ErrStaleFetch = errors.New("mapview: superseded fetch discarded")
)
