package engine

import (
	"errors"
	"fmt"
)

// Validation and lifecycle failures returned to callers. Handlers map these
// to HTTP status codes with errors.Is.
var (
	ErrTimeframeExceedsDuration       = errors.New("time frame exceeds project duration")
	ErrProjectNotActive               = errors.New("project is not active")
	ErrProjectFull                    = errors.New("project has no open slots")
	ErrAlreadyEmployed                = errors.New("provider is already a project member")
	ErrAlreadyResolved                = errors.New("engagement is already resolved")
	ErrInsufficientCapacityForMembers = errors.New("resources needed below current member count")
	ErrCannotCompleteWithoutMembers   = errors.New("cannot complete a project without members")
	ErrInvalidDateRange               = errors.New("end date must be after start date")
	ErrCannotDeactivateWithMembers    = errors.New("cannot deactivate a project with members")
	ErrReasonRequired                 = errors.New("resignation reason required")
	ErrUnresolvedResignation          = errors.New("resigning member not routed to removal or rejection")
)

// ErrStoreUnavailable wraps storage failures so callers can tell them apart
// from validation errors.
var ErrStoreUnavailable = errors.New("store unavailable")

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
