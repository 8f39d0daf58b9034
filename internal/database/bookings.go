package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain"

	"github.com/google/uuid"
)

const bookingColumns = `id, unit_id, user_id, period_start, period_end,
                 price_for_period, cleaning_fee, amenities_up_charge, total_price, currency,
                 status, created_on_utc, confirmed_on_utc, rejected_on_utc,
                 completed_on_utc, cancelled_on_utc, version`

// HasOverlappingBooking is the pre-flight half of the overlap guard: a cheap
// read answering whether any blocking booking collides with the period.
// Cancelled and rejected bookings do not block. Boundaries are inclusive,
// matching DateRange.Overlaps.
func (db *DB) HasOverlappingBooking(ctx context.Context, unitID uuid.UUID, period domain.DateRange) (bool, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE unit_id = ?
                AND status IN (?, ?, ?)
                AND period_start <= ?
                AND period_end >= ?`

	var count int
	err := db.QueryRowContext(ctx, query,
		unitID.String(),
		domain.StatusReserved, domain.StatusConfirmed, domain.StatusCompleted,
		period.End.Format(domain.DateLayout),
		period.Start.Format(domain.DateLayout),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check overlapping bookings: %w", err)
	}
	return count > 0, nil
}

// ReserveBooking is the unit-of-work commit of the reservation workflow: the
// booking row, the unit's version bump and one outbox row per drained fact go
// into a single transaction. The conditional update on the unit's version is
// the authoritative half of the overlap guard; when a concurrent reservation
// already advanced it, nothing is written and ErrConcurrentModification is
// returned.
func (db *DB) ReserveBooking(ctx context.Context, booking *domain.Booking, unit *domain.Unit) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertBookingTx(ctx, tx, booking); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE units SET version = version + 1, last_reserved_on_utc = ?, updated_at = ?
         WHERE id = ? AND version = ?`,
		unit.LastReservedOnUtc,
		time.Now().UTC(),
		unit.ID.String(),
		unit.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update unit version: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	if err := insertOutboxTx(ctx, tx, booking.DrainFacts()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}
	unit.Version++
	return nil
}

// SaveBookingStatus persists a lifecycle transition: status, transition
// timestamps and the drained facts commit together, guarded by the booking
// row's own version token.
func (db *DB) SaveBookingStatus(ctx context.Context, booking *domain.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, confirmed_on_utc = ?, rejected_on_utc = ?,
                completed_on_utc = ?, cancelled_on_utc = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		booking.Status(),
		booking.ConfirmedOnUtc(),
		booking.RejectedOnUtc(),
		booking.CompletedOnUtc(),
		booking.CancelledOnUtc(),
		booking.ID().String(),
		booking.Version(),
	)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	if err := insertOutboxTx(ctx, tx, booking.DrainFacts()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status change: %w", err)
	}
	booking.AdvanceVersion()
	return nil
}

func insertBookingTx(ctx context.Context, tx *sql.Tx, booking *domain.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		booking.ID().String(),
		booking.UnitID().String(),
		booking.UserID().String(),
		booking.Period().Start.Format(domain.DateLayout),
		booking.Period().End.Format(domain.DateLayout),
		booking.PriceForPeriod().Amount,
		booking.CleaningFee().Amount,
		booking.AmenitiesUpCharge().Amount,
		booking.TotalPrice().Amount,
		booking.TotalPrice().Currency,
		booking.Status(),
		booking.CreatedOnUtc(),
		booking.ConfirmedOnUtc(),
		booking.RejectedOnUtc(),
		booking.CompletedOnUtc(),
		booking.CancelledOnUtc(),
		booking.Version(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(db.QueryRowContext(ctx, query, id.String()))
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE period_start <= ? AND period_end >= ?
              ORDER BY period_start ASC, created_on_utc ASC`

	rows, err := db.QueryContext(ctx, query,
		end.Format(domain.DateLayout),
		start.Format(domain.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		rawID, rawUnitID, rawUserID          string
		rawStart, rawEnd                     string
		priceForPeriod, cleaningFee          int64
		amenitiesUpCharge, totalPrice        int64
		currency, status                     string
		createdOnUtc                         time.Time
		confirmedOn, rejectedOn, completedOn sql.NullTime
		cancelledOn                          sql.NullTime
		version                              int64
	)

	err := row.Scan(
		&rawID, &rawUnitID, &rawUserID, &rawStart, &rawEnd,
		&priceForPeriod, &cleaningFee, &amenitiesUpCharge, &totalPrice, &currency,
		&status, &createdOnUtc, &confirmedOn, &rejectedOn, &completedOn, &cancelledOn,
		&version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking id %s: %w", rawID, err)
	}
	unitID, err := uuid.Parse(rawUnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit id %s: %w", rawUnitID, err)
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user id %s: %w", rawUserID, err)
	}

	start, err := time.Parse(domain.DateLayout, rawStart)
	if err != nil {
		return nil, fmt.Errorf("failed to parse period start %s: %w", rawStart, err)
	}
	end, err := time.Parse(domain.DateLayout, rawEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse period end %s: %w", rawEnd, err)
	}
	period, err := domain.NewDateRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("stored period %s..%s is invalid: %w", rawStart, rawEnd, err)
	}

	return domain.RehydrateBooking(
		id, unitID, userID, period,
		domain.NewMoney(priceForPeriod, currency),
		domain.NewMoney(cleaningFee, currency),
		domain.NewMoney(amenitiesUpCharge, currency),
		domain.NewMoney(totalPrice, currency),
		status, createdOnUtc,
		nullableTime(confirmedOn), nullableTime(rejectedOn),
		nullableTime(completedOn), nullableTime(cancelledOn),
		version,
	), nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
