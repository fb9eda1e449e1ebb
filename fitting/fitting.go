// Package fitting registers a statistical shape model to a point cloud. A Session owns the live
// mesh: fits run on snapshots and only a successful fit writes its result back.
package fitting

import (
	"github.com/pkg/errors"
)

var (
	// ErrMissingInput means initialisation from a transform was requested without a transform.
	// The mesh is left as it was and the session may continue.
	ErrMissingInput = errors.New("no input transform supplied")
	// ErrFitInFlight is returned when a fit or reset is requested while a fit is running.
	ErrFitInFlight = errors.New("a fit is already in progress")
	// ErrSessionClosed is returned once a session has been accepted or aborted.
	ErrSessionClosed = errors.New("fitting session is closed")
	// ErrNoResult is returned when accepting a session that has not fitted anything.
	ErrNoResult = errors.New("no fit result to accept")
)
