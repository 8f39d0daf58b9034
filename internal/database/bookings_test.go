package database

import (
	"context"
	"testing"
	"time"

	"staybook/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveBookingCommitsAtomically(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db)
	user := seedUser(t, db)

	booking := reserveBooking(t, db, unit, user.ID, "2024-01-01", "2024-01-10")

	// Booking row is there.
	got, err := db.GetBooking(ctx, booking.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, got.Status())
	assert.Equal(t, domain.NewMoney(92000, "USD"), got.TotalPrice())
	assert.Equal(t, int64(1), got.Version())

	// Unit version advanced and the reservation marker is stamped.
	storedUnit, err := db.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), storedUnit.Version)
	assert.NotNil(t, storedUnit.LastReservedOnUtc)

	// Exactly one outbox row carries the reserved fact.
	messages, err := db.GetOutboxMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.FactBookingReserved, messages[0].Type)
	assert.Nil(t, messages[0].ProcessedOnUtc)
	assert.Contains(t, string(messages[0].Content), booking.ID().String())
}

func TestReserveBookingStaleUnitVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db)
	user := seedUser(t, db)

	// Two readers load the unit at the same version.
	first, err := db.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	second, err := db.GetUnit(ctx, unit.ID)
	require.NoError(t, err)

	reserveBooking(t, db, first, user.ID, "2024-01-01", "2024-01-10")

	// The loser writes nothing at all.
	period := testRange(t, "2024-02-01", "2024-02-05")
	booking, err := domain.Reserve(second, user.ID, period, time.Now().UTC(), domain.PricingService{})
	require.NoError(t, err)
	err = db.ReserveBooking(ctx, booking, second)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	_, err = db.GetBooking(ctx, booking.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := db.UnprocessedOutboxCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHasOverlappingBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db)
	user := seedUser(t, db)
	reserveBooking(t, db, unit, user.ID, "2024-01-10", "2024-01-20")

	tests := []struct {
		name    string
		start   string
		end     string
		overlap bool
	}{
		{"inside", "2024-01-12", "2024-01-15", true},
		{"spanning", "2024-01-05", "2024-01-25", true},
		{"touching end", "2024-01-20", "2024-01-25", true},
		{"touching start", "2024-01-05", "2024-01-10", true},
		{"before", "2024-01-01", "2024-01-05", false},
		{"after", "2024-01-25", "2024-01-30", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.HasOverlappingBooking(ctx, unit.ID, testRange(t, tt.start, tt.end))
			require.NoError(t, err)
			assert.Equal(t, tt.overlap, got)
		})
	}
}

func TestHasOverlappingBookingIgnoresCancelled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db)
	user := seedUser(t, db)
	booking := reserveBooking(t, db, unit, user.ID, "2099-01-10", "2099-01-20")

	now := time.Now().UTC()
	require.NoError(t, booking.Confirm(now))
	require.NoError(t, db.SaveBookingStatus(ctx, booking))
	require.NoError(t, booking.Cancel(now))
	require.NoError(t, db.SaveBookingStatus(ctx, booking))

	got, err := db.HasOverlappingBooking(ctx, unit.ID, testRange(t, "2099-01-12", "2099-01-15"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestSaveBookingStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db)
	user := seedUser(t, db)
	booking := reserveBooking(t, db, unit, user.ID, "2024-01-01", "2024-01-10")

	now := time.Now().UTC()
	require.NoError(t, booking.Confirm(now))
	require.NoError(t, db.SaveBookingStatus(ctx, booking))

	got, err := db.GetBooking(ctx, booking.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status())
	require.NotNil(t, got.ConfirmedOnUtc())
	assert.Equal(t, int64(2), got.Version())

	messages, err := db.GetOutboxMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.FactBookingReserved, messages[0].Type)
	assert.Equal(t, domain.FactBookingConfirmed, messages[1].Type)
}

func TestSaveBookingStatusStaleVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db)
	user := seedUser(t, db)
	booking := reserveBooking(t, db, unit, user.ID, "2024-01-01", "2024-01-10")

	// Two actors rehydrate the booking at the same version.
	first, err := db.GetBooking(ctx, booking.ID())
	require.NoError(t, err)
	second, err := db.GetBooking(ctx, booking.ID())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, first.Confirm(now))
	require.NoError(t, db.SaveBookingStatus(ctx, first))

	require.NoError(t, second.Reject(now))
	err = db.SaveBookingStatus(ctx, second)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err := db.GetBooking(ctx, booking.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status())
}

func TestGetBookingsByDateRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unitA := seedUnit(t, db)
	unitB := &domain.Unit{
		ID:           uuid.New(),
		Name:         "Garden Loft",
		NightlyPrice: domain.NewMoney(14500, "USD"),
	}
	require.NoError(t, db.CreateUnit(ctx, unitB))
	user := seedUser(t, db)

	reserveBooking(t, db, unitA, user.ID, "2024-01-01", "2024-01-05")
	reserveBooking(t, db, unitB, user.ID, "2024-01-10", "2024-01-15")
	reserveBooking(t, db, unitA, user.ID, "2024-03-01", "2024-03-05")

	s, _ := time.Parse(domain.DateLayout, "2024-01-01")
	e, _ := time.Parse(domain.DateLayout, "2024-01-31")
	bookings, err := db.GetBookingsByDateRange(ctx, s, e)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, unitA.ID, bookings[0].UnitID())
	assert.Equal(t, unitB.ID, bookings[1].UnitID())
}
