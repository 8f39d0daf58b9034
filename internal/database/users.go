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

func (db *DB) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, query, user.ID.String(), user.Name, user.Email, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, name, email, created_at FROM users WHERE id = ?`

	var user domain.User
	var rawID string
	err := db.QueryRowContext(ctx, query, id.String()).Scan(&rawID, &user.Name, &user.Email, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user id %s: %w", rawID, err)
	}
	return &user, nil
}
