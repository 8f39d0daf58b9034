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

const outboxColumns = `id, occurred_on_utc, type, content, processed_on_utc, attempts, last_error, next_attempt_at`

func insertOutboxTx(ctx context.Context, tx *sql.Tx, facts []domain.PendingFact) error {
	query := `INSERT INTO outbox_messages (id, occurred_on_utc, type, content) VALUES (?, ?, ?, ?)`
	for _, fact := range facts {
		_, err := tx.ExecContext(ctx, query,
			fact.ID.String(),
			fact.OccurredOnUtc,
			fact.Type,
			string(fact.Payload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox message: %w", err)
		}
	}
	return nil
}

// ClaimOutboxMessages leases a batch of deliverable messages, ordered by
// (occurred_on_utc, id). Each candidate is claimed with a conditional update,
// so two dispatcher instances polling at once split the batch instead of
// delivering the same message twice. A lease that expires without being marked
// processed makes the message claimable again. Messages whose attempts reached
// maxAttempts are left parked with their last error.
func (db *DB) ClaimOutboxMessages(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	now := time.Now().UTC()

	query := `SELECT ` + outboxColumns + ` FROM outbox_messages
              WHERE processed_on_utc IS NULL
                AND attempts < ?
                AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
                AND (claimed_until IS NULL OR claimed_until <= ?)
              ORDER BY occurred_on_utc ASC, id ASC
              LIMIT ?`

	rows, err := db.QueryContext(ctx, query, maxAttempts, now, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox candidates: %w", err)
	}

	var candidates []*domain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutboxMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	claimQuery := `UPDATE outbox_messages SET claimed_until = ?
                   WHERE id = ? AND processed_on_utc IS NULL
                     AND (claimed_until IS NULL OR claimed_until <= ?)`

	claimedUntil := now.Add(lease)
	var claimed []*domain.OutboxMessage
	for _, msg := range candidates {
		result, err := db.ExecContext(ctx, claimQuery, claimedUntil, msg.ID.String(), now)
		if err != nil {
			return nil, fmt.Errorf("failed to claim outbox message %s: %w", msg.ID, err)
		}
		affected, _ := result.RowsAffected()
		if affected == 1 {
			claimed = append(claimed, msg)
		}
	}
	return claimed, nil
}

// MarkOutboxProcessed stamps processed_on_utc exactly once. A second attempt,
// including one from a competing dispatcher, finds zero rows and gets
// ErrConcurrentModification.
func (db *DB) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_messages SET processed_on_utc = ?, claimed_until = NULL, last_error = NULL
              WHERE id = ? AND processed_on_utc IS NULL`
	result, err := db.ExecContext(ctx, query, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark outbox message processed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// MarkOutboxFailed records a delivery failure and schedules the next attempt.
// The message stays unprocessed and becomes claimable again at nextAttemptAt.
func (db *DB) MarkOutboxFailed(ctx context.Context, id uuid.UUID, deliveryErr string, nextAttemptAt *time.Time) error {
	query := `UPDATE outbox_messages
              SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?, claimed_until = NULL
              WHERE id = ? AND processed_on_utc IS NULL`
	_, err := db.ExecContext(ctx, query, deliveryErr, nextAttemptAt, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark outbox message failed: %w", err)
	}
	return nil
}

// GetOutboxMessages returns every outbox row in dispatch order.
func (db *DB) GetOutboxMessages(ctx context.Context) ([]*domain.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages ORDER BY occurred_on_utc ASC, id ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UnprocessedOutboxCount reports the current dispatch backlog.
func (db *DB) UnprocessedOutboxCount(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_messages WHERE processed_on_utc IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed outbox messages: %w", err)
	}
	return count, nil
}

func scanOutboxMessage(row rowScanner) (*domain.OutboxMessage, error) {
	var (
		rawID         string
		occurredOnUtc time.Time
		factType      string
		content       string
		processedOn   sql.NullTime
		attempts      int
		lastError     sql.NullString
		nextAttemptAt sql.NullTime
	)

	err := row.Scan(&rawID, &occurredOnUtc, &factType, &content, &processedOn, &attempts, &lastError, &nextAttemptAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox message: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse outbox message id %s: %w", rawID, err)
	}

	msg := &domain.OutboxMessage{
		ID:            id,
		OccurredOnUtc: occurredOnUtc,
		Type:          factType,
		Content:       []byte(content),
		Attempts:      attempts,
	}
	msg.ProcessedOnUtc = nullableTime(processedOn)
	msg.NextAttemptAt = nullableTime(nextAttemptAt)
	if lastError.Valid {
		v := lastError.String
		msg.LastError = &v
	}
	return msg, nil
}
