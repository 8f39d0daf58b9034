package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain"

	"github.com/google/uuid"
)

const unitColumns = `id, name, nightly_price, cleaning_fee, currency, amenities, version, last_reserved_on_utc`

func (db *DB) CreateUnit(ctx context.Context, unit *domain.Unit) error {
	amenities, err := json.Marshal(unit.Amenities)
	if err != nil {
		return fmt.Errorf("failed to encode amenities: %w", err)
	}

	query := `INSERT INTO units (id, name, nightly_price, cleaning_fee, currency, amenities, version, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, 1, ?)`
	_, err = db.ExecContext(ctx, query,
		unit.ID.String(),
		unit.Name,
		unit.NightlyPrice.Amount,
		unit.CleaningFee.Amount,
		unit.NightlyPrice.Currency,
		string(amenities),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create unit: %w", err)
	}
	unit.Version = 1
	return nil
}

// SyncUnits upserts the unit catalog. Prices and amenities follow the catalog;
// the version column and the reservation marker are left alone so in-flight
// optimistic checks stay valid.
func (db *DB) SyncUnits(ctx context.Context, units []*domain.Unit) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO units (id, name, nightly_price, cleaning_fee, currency, amenities, version, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, 1, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  nightly_price = excluded.nightly_price,
                  cleaning_fee = excluded.cleaning_fee,
                  currency = excluded.currency,
                  amenities = excluded.amenities,
                  updated_at = excluded.updated_at`

	now := time.Now().UTC()
	for _, unit := range units {
		amenities, err := json.Marshal(unit.Amenities)
		if err != nil {
			return fmt.Errorf("failed to encode amenities for %s: %w", unit.Name, err)
		}
		_, err = tx.ExecContext(ctx, query,
			unit.ID.String(),
			unit.Name,
			unit.NightlyPrice.Amount,
			unit.CleaningFee.Amount,
			unit.NightlyPrice.Currency,
			string(amenities),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to sync unit %s: %w", unit.Name, err)
		}
	}

	return tx.Commit()
}

func (db *DB) GetUnit(ctx context.Context, id uuid.UUID) (*domain.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = ?`
	return db.scanUnit(db.QueryRowContext(ctx, query, id.String()))
}

func (db *DB) ListUnits(ctx context.Context) ([]*domain.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units ORDER BY name ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []*domain.Unit
	for rows.Next() {
		unit, err := db.scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanUnit(row rowScanner) (*domain.Unit, error) {
	var (
		rawID        string
		name         string
		nightlyPrice int64
		cleaningFee  int64
		currency     string
		rawAmenities string
		version      int64
		lastReserved sql.NullTime
	)

	err := row.Scan(&rawID, &name, &nightlyPrice, &cleaningFee, &currency, &rawAmenities, &version, &lastReserved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan unit: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit id %s: %w", rawID, err)
	}

	var amenities []domain.AmenityUpCharge
	if err := json.Unmarshal([]byte(rawAmenities), &amenities); err != nil {
		return nil, fmt.Errorf("failed to decode amenities for unit %s: %w", rawID, err)
	}

	unit := &domain.Unit{
		ID:           id,
		Name:         name,
		NightlyPrice: domain.NewMoney(nightlyPrice, currency),
		CleaningFee:  domain.NewMoney(cleaningFee, currency),
		Amenities:    amenities,
		Version:      version,
	}
	if lastReserved.Valid {
		t := lastReserved.Time
		unit.LastReservedOnUtc = &t
	}
	return unit, nil
}
