package domain

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is how calendar dates are rendered in payloads and storage.
const DateLayout = "2006-01-02"

const (
	StatusReserved  = "reserved"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Booking is the reservation aggregate root. All fields are private; the only
// ways in are the Reserve factory and the transition methods, which keep the
// status, the transition timestamps and the raised facts consistent.
type Booking struct {
	id                uuid.UUID
	unitID            uuid.UUID
	userID            uuid.UUID
	period            DateRange
	priceForPeriod    Money
	cleaningFee       Money
	amenitiesUpCharge Money
	totalPrice        Money
	status            string
	createdOnUtc      time.Time
	confirmedOnUtc    *time.Time
	rejectedOnUtc     *time.Time
	completedOnUtc    *time.Time
	cancelledOnUtc    *time.Time
	version           int64

	facts []PendingFact
}

// Reserve creates a booking in reserved status, prices the stay and raises the
// reserved fact. It also stamps the unit's LastReservedOnUtc: that mutation is
// what guarantees the unit row's version changes on every reservation commit,
// which the authoritative overlap guard depends on.
func Reserve(unit *Unit, userID uuid.UUID, period DateRange, now time.Time, pricing PricingService) (*Booking, error) {
	details, err := pricing.CalculatePrice(unit, period)
	if err != nil {
		return nil, err
	}

	b := &Booking{
		id:                uuid.New(),
		unitID:            unit.ID,
		userID:            userID,
		period:            period,
		priceForPeriod:    details.PriceForPeriod,
		cleaningFee:       details.CleaningFee,
		amenitiesUpCharge: details.AmenitiesUpCharge,
		totalPrice:        details.TotalPrice,
		status:            StatusReserved,
		createdOnUtc:      now,
		version:           1,
	}

	b.raise(FactBookingReserved, now)

	unit.LastReservedOnUtc = &now

	return b, nil
}

// Confirm moves a reserved booking to confirmed.
func (b *Booking) Confirm(now time.Time) error {
	if b.status != StatusReserved {
		return ErrNotReserved
	}

	b.status = StatusConfirmed
	b.confirmedOnUtc = &now
	b.raise(FactBookingConfirmed, now)
	return nil
}

// Reject moves a reserved booking to rejected.
func (b *Booking) Reject(now time.Time) error {
	if b.status != StatusReserved {
		return ErrNotReserved
	}

	b.status = StatusRejected
	b.rejectedOnUtc = &now
	b.raise(FactBookingRejected, now)
	return nil
}

// Complete moves a confirmed booking to completed.
func (b *Booking) Complete(now time.Time) error {
	if b.status != StatusConfirmed {
		return ErrNotConfirmed
	}

	b.status = StatusCompleted
	b.completedOnUtc = &now
	b.raise(FactBookingCompleted, now)
	return nil
}

// Cancel moves a confirmed booking to cancelled. A stay that already started
// can no longer be cancelled.
func (b *Booking) Cancel(now time.Time) error {
	if b.status != StatusConfirmed {
		return ErrNotConfirmed
	}
	if TruncateToDate(now).After(b.period.Start) {
		return ErrAlreadyStarted
	}

	b.status = StatusCancelled
	b.cancelledOnUtc = &now
	b.raise(FactBookingCancelled, now)
	return nil
}

// DrainFacts empties the pending fact buffer. The store calls it exactly once
// while committing; a second call within the same transaction returns nothing.
func (b *Booking) DrainFacts() []PendingFact {
	facts := b.facts
	b.facts = nil
	return facts
}

func (b *Booking) raise(factType string, now time.Time) {
	b.facts = append(b.facts, newBookingFact(factType, b, now))
}

func (b *Booking) ID() uuid.UUID            { return b.id }
func (b *Booking) UnitID() uuid.UUID        { return b.unitID }
func (b *Booking) UserID() uuid.UUID        { return b.userID }
func (b *Booking) Period() DateRange        { return b.period }
func (b *Booking) PriceForPeriod() Money    { return b.priceForPeriod }
func (b *Booking) CleaningFee() Money       { return b.cleaningFee }
func (b *Booking) AmenitiesUpCharge() Money { return b.amenitiesUpCharge }
func (b *Booking) TotalPrice() Money        { return b.totalPrice }
func (b *Booking) Status() string           { return b.status }
func (b *Booking) CreatedOnUtc() time.Time  { return b.createdOnUtc }
func (b *Booking) Version() int64           { return b.version }

func (b *Booking) ConfirmedOnUtc() *time.Time { return b.confirmedOnUtc }
func (b *Booking) RejectedOnUtc() *time.Time  { return b.rejectedOnUtc }
func (b *Booking) CompletedOnUtc() *time.Time { return b.completedOnUtc }
func (b *Booking) CancelledOnUtc() *time.Time { return b.cancelledOnUtc }

// AdvanceVersion moves the in-memory version token past a committed
// conditional update. Only the storage layer calls it.
func (b *Booking) AdvanceVersion() {
	b.version++
}

// RehydrateBooking rebuilds an aggregate from its persisted state. Only the
// storage layer should call it; it raises no facts.
func RehydrateBooking(
	id, unitID, userID uuid.UUID,
	period DateRange,
	priceForPeriod, cleaningFee, amenitiesUpCharge, totalPrice Money,
	status string,
	createdOnUtc time.Time,
	confirmedOnUtc, rejectedOnUtc, completedOnUtc, cancelledOnUtc *time.Time,
	version int64,
) *Booking {
	return &Booking{
		id:                id,
		unitID:            unitID,
		userID:            userID,
		period:            period,
		priceForPeriod:    priceForPeriod,
		cleaningFee:       cleaningFee,
		amenitiesUpCharge: amenitiesUpCharge,
		totalPrice:        totalPrice,
		status:            status,
		createdOnUtc:      createdOnUtc,
		confirmedOnUtc:    confirmedOnUtc,
		rejectedOnUtc:     rejectedOnUtc,
		completedOnUtc:    completedOnUtc,
		cancelledOnUtc:    cancelledOnUtc,
		version:           version,
	}
}
