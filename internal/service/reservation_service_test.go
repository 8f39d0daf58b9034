package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"staybook/internal/database"
	"staybook/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) UtcNow() time.Time { return c.now }

type serviceFixture struct {
	db   *database.DB
	svc  *ReservationService
	unit *domain.Unit
	user *domain.User
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(zerolog.NewConsoleWriter())

	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	unit := &domain.Unit{
		ID:           uuid.New(),
		Name:         "Seaside Studio",
		NightlyPrice: domain.NewMoney(10000, "USD"),
		CleaningFee:  domain.NewMoney(2000, "USD"),
	}
	require.NoError(t, db.CreateUnit(ctx, unit))

	user := &domain.User{ID: uuid.New(), Name: "Guest", Email: "guest@example.com"}
	require.NoError(t, db.CreateUser(ctx, user))

	clock := fixedClock{now: time.Date(2023, 12, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewReservationService(db, clock, &logger)

	return &serviceFixture{db: db, svc: svc, unit: unit, user: user}
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReserveWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bookingID, err := f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, bookingID)

	booking, err := f.svc.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, booking.Status())
	assert.Equal(t, domain.NewMoney(90000, "USD"), booking.PriceForPeriod())
	assert.Equal(t, domain.NewMoney(92000, "USD"), booking.TotalPrice())

	// The commit produced exactly one outbox row carrying the booking id.
	messages, err := f.db.GetOutboxMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.FactBookingReserved, messages[0].Type)
	assert.Contains(t, string(messages[0].Content), bookingID.String())
}

func TestReserveUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reserve(context.Background(), uuid.New(), f.unit.ID, day("2024-01-01"), day("2024-01-10"))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestReserveUnknownUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The failure is stable on resubmission and commits nothing.
	unknownUnit := uuid.New()
	for i := 0; i < 2; i++ {
		_, err := f.svc.Reserve(ctx, f.user.ID, unknownUnit, day("2024-01-01"), day("2024-01-10"))
		assert.ErrorIs(t, err, domain.ErrUnitNotFound)
	}

	count, err := f.db.UnprocessedOutboxCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	_, err = f.db.GetBookingsByDateRange(ctx, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)
}

func TestReserveInvalidRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reserve(context.Background(), f.user.ID, f.unit.ID, day("2024-01-10"), day("2024-01-01"))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestReserveOverlapRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2024-01-10"), day("2024-01-20"))
	require.NoError(t, err)

	// Contained period.
	_, err = f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2024-01-12"), day("2024-01-15"))
	assert.ErrorIs(t, err, domain.ErrBookingOverlap)

	// Back-to-back on the boundary day is also an overlap.
	_, err = f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2024-01-20"), day("2024-01-25"))
	assert.ErrorIs(t, err, domain.ErrBookingOverlap)

	// A disjoint period still goes through.
	_, err = f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2024-02-01"), day("2024-02-05"))
	assert.NoError(t, err)

	count, err := f.db.UnprocessedOutboxCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBookingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bookingID, err := f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Confirm(ctx, bookingID))
	booking, err := f.svc.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, booking.Status())

	// Confirming again conflicts with the state machine.
	assert.ErrorIs(t, f.svc.Confirm(ctx, bookingID), domain.ErrNotReserved)

	require.NoError(t, f.svc.Complete(ctx, bookingID))
	booking, err = f.svc.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, booking.Status())

	// reserved, confirmed, completed: one fact per committed transition.
	messages, err := f.db.GetOutboxMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, messages, 3)
}

func TestCancelBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Clock is fixed at 2023-12-01, well before check-in.
	bookingID, err := f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Confirm(ctx, bookingID))
	require.NoError(t, f.svc.Cancel(ctx, bookingID))

	booking, err := f.svc.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, booking.Status())
}

func TestCancelAfterStartRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bookingID, err := f.svc.Reserve(ctx, f.user.ID, f.unit.ID, day("2023-11-01"), day("2023-12-10"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Confirm(ctx, bookingID))

	// The stay started 2023-11-01; the clock says 2023-12-01.
	assert.ErrorIs(t, f.svc.Cancel(ctx, bookingID), domain.ErrAlreadyStarted)
}

func TestTransitionUnknownBooking(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.svc.Confirm(context.Background(), uuid.New()), domain.ErrBookingNotFound)
	_, err := f.svc.GetBooking(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

// stubRepo simulates a repository whose commit loses the version race even
// though the pre-flight check saw no overlap.
type stubRepo struct {
	domain.Repository
	user *domain.User
	unit *domain.Unit
}

func (r *stubRepo) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.user, nil
}

func (r *stubRepo) GetUnit(ctx context.Context, id uuid.UUID) (*domain.Unit, error) {
	return r.unit, nil
}

func (r *stubRepo) HasOverlappingBooking(ctx context.Context, unitID uuid.UUID, period domain.DateRange) (bool, error) {
	return false, nil
}

func (r *stubRepo) ReserveBooking(ctx context.Context, booking *domain.Booking, unit *domain.Unit) error {
	return database.ErrConcurrentModification
}

func TestReserveVersionRaceBecomesOverlap(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	repo := &stubRepo{
		user: &domain.User{ID: uuid.New()},
		unit: &domain.Unit{ID: uuid.New(), NightlyPrice: domain.NewMoney(10000, "USD")},
	}
	svc := NewReservationService(repo, SystemClock{}, &logger)

	_, err := svc.Reserve(context.Background(), repo.user.ID, repo.unit.ID, day("2024-01-01"), day("2024-01-10"))
	assert.ErrorIs(t, err, domain.ErrBookingOverlap)
}
