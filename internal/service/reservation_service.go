package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReservationService is the application workflow around the booking
// aggregate. Reserve runs the admission protocol: lookups, pre-flight overlap
// check, aggregate factory, then a single atomic commit whose storage conflict
// is remapped to the overlap business error.
type ReservationService struct {
	repo    domain.Repository
	pricing domain.PricingService
	clock   domain.Clock
	logger  *zerolog.Logger
}

func NewReservationService(repo domain.Repository, clock domain.Clock, logger *zerolog.Logger) *ReservationService {
	return &ReservationService{
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

// Reserve admits a new reservation and returns its id. Business failures come
// back as domain errors; any other storage failure is fatal and nothing has
// been committed.
func (s *ReservationService) Reserve(ctx context.Context, userID, unitID uuid.UUID, startDate, endDate time.Time) (uuid.UUID, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			metrics.IncReservation("not_found")
			return uuid.Nil, domain.ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("resolve user: %w", err)
	}

	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			metrics.IncReservation("not_found")
			return uuid.Nil, domain.ErrUnitNotFound
		}
		return uuid.Nil, fmt.Errorf("resolve unit: %w", err)
	}

	period, err := domain.NewDateRange(startDate, endDate)
	if err != nil {
		metrics.IncReservation("invalid")
		return uuid.Nil, err
	}

	overlapping, err := s.repo.HasOverlappingBooking(ctx, unit.ID, period)
	if err != nil {
		return uuid.Nil, fmt.Errorf("pre-flight overlap check: %w", err)
	}
	if overlapping {
		metrics.IncReservation("overlap")
		return uuid.Nil, domain.ErrBookingOverlap
	}

	booking, err := domain.Reserve(unit, user.ID, period, s.clock.UtcNow(), s.pricing)
	if err != nil {
		metrics.IncReservation("invalid")
		return uuid.Nil, err
	}

	if err := s.repo.ReserveBooking(ctx, booking, unit); err != nil {
		// The version conflict is the authoritative overlap guard firing:
		// a concurrent reservation won the race between our pre-flight
		// check and this commit.
		if errors.Is(err, database.ErrConcurrentModification) {
			metrics.IncReservation("overlap")
			s.logger.Info().
				Str("unit_id", unit.ID.String()).
				Str("booking_id", booking.ID().String()).
				Msg("reservation lost version race")
			return uuid.Nil, domain.ErrBookingOverlap
		}
		metrics.IncReservation("error")
		return uuid.Nil, fmt.Errorf("commit reservation: %w", err)
	}

	metrics.IncReservation("reserved")
	s.logger.Info().
		Str("booking_id", booking.ID().String()).
		Str("unit_id", unit.ID.String()).
		Str("user_id", user.ID.String()).
		Str("period_start", period.Start.Format(domain.DateLayout)).
		Str("period_end", period.End.Format(domain.DateLayout)).
		Msg("booking reserved")

	return booking.ID(), nil
}

// Confirm moves a reserved booking to confirmed.
func (s *ReservationService) Confirm(ctx context.Context, bookingID uuid.UUID) error {
	return s.transition(ctx, bookingID, "confirm", func(b *domain.Booking, now time.Time) error {
		return b.Confirm(now)
	})
}

// Reject moves a reserved booking to rejected.
func (s *ReservationService) Reject(ctx context.Context, bookingID uuid.UUID) error {
	return s.transition(ctx, bookingID, "reject", func(b *domain.Booking, now time.Time) error {
		return b.Reject(now)
	})
}

// Complete moves a confirmed booking to completed.
func (s *ReservationService) Complete(ctx context.Context, bookingID uuid.UUID) error {
	return s.transition(ctx, bookingID, "complete", func(b *domain.Booking, now time.Time) error {
		return b.Complete(now)
	})
}

// Cancel cancels a confirmed booking that has not started yet.
func (s *ReservationService) Cancel(ctx context.Context, bookingID uuid.UUID) error {
	return s.transition(ctx, bookingID, "cancel", func(b *domain.Booking, now time.Time) error {
		return b.Cancel(now)
	})
}

func (s *ReservationService) transition(ctx context.Context, bookingID uuid.UUID, name string, fn func(*domain.Booking, time.Time) error) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return domain.ErrBookingNotFound
		}
		return fmt.Errorf("resolve booking: %w", err)
	}

	if err := fn(booking, s.clock.UtcNow()); err != nil {
		return err
	}

	if err := s.repo.SaveBookingStatus(ctx, booking); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	s.logger.Info().
		Str("booking_id", bookingID.String()).
		Str("operation", name).
		Str("status", booking.Status()).
		Msg("booking transition committed")

	return nil
}

// GetBooking returns the booking snapshot for read-side callers.
func (s *ReservationService) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	return booking, err
}

// GetBookingsByDateRange returns bookings touching the period, for reporting.
func (s *ReservationService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*domain.Booking, error) {
	return s.repo.GetBookingsByDateRange(ctx, start, end)
}

// ListUnits returns the unit catalog.
func (s *ReservationService) ListUnits(ctx context.Context) ([]*domain.Unit, error) {
	return s.repo.ListUnits(ctx)
}
