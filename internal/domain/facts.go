package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	FactBookingReserved  = "booking_reserved"
	FactBookingConfirmed = "booking_confirmed"
	FactBookingRejected  = "booking_rejected"
	FactBookingCompleted = "booking_completed"
	FactBookingCancelled = "booking_cancelled"
)

// PendingFact is a domain event raised by an aggregate mutation. It lives in
// the aggregate's in-memory buffer until the store drains it into the outbox
// as part of the owning transaction.
type PendingFact struct {
	ID            uuid.UUID
	OccurredOnUtc time.Time
	Type          string
	Payload       []byte
}

// BookingFactPayload is the serialized content of every booking fact.
type BookingFactPayload struct {
	BookingID   uuid.UUID `json:"booking_id"`
	UnitID      uuid.UUID `json:"unit_id"`
	UserID      uuid.UUID `json:"user_id"`
	Status      string    `json:"status"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
}

// OutboxMessage is the durable form of a PendingFact. Rows are created once at
// commit time and afterwards mutated only by the dispatcher.
type OutboxMessage struct {
	ID             uuid.UUID
	OccurredOnUtc  time.Time
	Type           string
	Content        []byte
	ProcessedOnUtc *time.Time
	Attempts       int
	LastError      *string
	NextAttemptAt  *time.Time
}

func newBookingFact(factType string, b *Booking, now time.Time) PendingFact {
	payload, _ := json.Marshal(BookingFactPayload{
		BookingID:   b.id,
		UnitID:      b.unitID,
		UserID:      b.userID,
		Status:      b.status,
		PeriodStart: b.period.Start.Format(DateLayout),
		PeriodEnd:   b.period.End.Format(DateLayout),
	})

	return PendingFact{
		ID:            uuid.New(),
		OccurredOnUtc: now,
		Type:          factType,
		Payload:       payload,
	}
}
