package domain

import (
	"time"

	"github.com/google/uuid"
)

// AmenityUpCharge is an already-resolved surcharge for one amenity of a unit.
type AmenityUpCharge struct {
	Name     string `json:"name"`
	UpCharge Money  `json:"up_charge"`
}

// Unit is a rentable unit. LastReservedOnUtc is stamped by Booking.Reserve and
// is what forces the version bump on every reservation attempt; Version is the
// optimistic concurrency token the authoritative overlap guard relies on.
type Unit struct {
	ID                uuid.UUID
	Name              string
	NightlyPrice      Money
	CleaningFee       Money
	Amenities         []AmenityUpCharge
	Version           int64
	LastReservedOnUtc *time.Time
}
