package domain

import "errors"

// Business errors returned as values by the aggregate and the reservation
// workflow. Storage-level failures are not part of this set; the only one
// crossing into it is the commit conflict, which the workflow remaps to
// ErrBookingOverlap.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUnitNotFound     = errors.New("unit not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrInvalidRange     = errors.New("start date must be before end date")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrBookingOverlap   = errors.New("booking overlaps an existing reservation")
	ErrNotReserved      = errors.New("booking is not in reserved status")
	ErrNotConfirmed     = errors.New("booking is not in confirmed status")
	ErrAlreadyStarted   = errors.New("booking period has already started")
)
