package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the storage contract of the reservation core. ReserveBooking
// and SaveBookingStatus are unit-of-work commits: the aggregate mutation, the
// unit version bump and the drained facts land in one transaction or not at
// all. Both surface the store's optimistic conflict as
// database.ErrConcurrentModification.
type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error)
	ListUnits(ctx context.Context) ([]*Unit, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*Booking, error)
	HasOverlappingBooking(ctx context.Context, unitID uuid.UUID, period DateRange) (bool, error)
	ReserveBooking(ctx context.Context, booking *Booking, unit *Unit) error
	SaveBookingStatus(ctx context.Context, booking *Booking) error
}

// Clock abstracts wall-clock time so workflows and tests agree on "now".
type Clock interface {
	UtcNow() time.Time
}

// MarkerStore records that a keyed action already happened. The dispatcher
// uses it to keep downstream fact delivery idempotent.
type MarkerStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}
