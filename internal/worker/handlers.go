package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"staybook/internal/domain"

	"github.com/rs/zerolog"
)

// AuditLogHandler writes every booking fact to the structured log. It is the
// default downstream consumer wired into the dispatcher binary; replaying a
// fact just logs it again, so it is idempotent by nature.
type AuditLogHandler struct {
	logger *zerolog.Logger
}

func NewAuditLogHandler(logger *zerolog.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: logger}
}

func (h *AuditLogHandler) Name() string { return "audit_log" }

func (h *AuditLogHandler) Handle(ctx context.Context, msg *domain.OutboxMessage) error {
	var payload domain.BookingFactPayload
	if err := json.Unmarshal(msg.Content, &payload); err != nil {
		return fmt.Errorf("decode fact payload: %w", err)
	}

	h.logger.Info().
		Str("fact_type", msg.Type).
		Str("booking_id", payload.BookingID.String()).
		Str("unit_id", payload.UnitID.String()).
		Str("user_id", payload.UserID.String()).
		Str("status", payload.Status).
		Str("period_start", payload.PeriodStart).
		Str("period_end", payload.PeriodEnd).
		Time("occurred_on_utc", msg.OccurredOnUtc).
		Msg("booking fact")

	return nil
}
