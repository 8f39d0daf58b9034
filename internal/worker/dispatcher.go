package worker

import (
	"context"
	"fmt"
	"time"

	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// FactHandler is a downstream consumer of booking facts. Delivery is
// at-least-once, so handlers must tolerate replays; the dispatcher helps by
// skipping (handler, message) pairs already recorded in the marker store, but
// that is best-effort only.
type FactHandler interface {
	Name() string
	Handle(ctx context.Context, msg *domain.OutboxMessage) error
}

// Dispatcher drains the transactional outbox: it claims unprocessed messages
// in (occurred_on_utc, id) order, delivers them to the handlers registered for
// their fact type and marks them processed. Failed deliveries are retried
// with exponential backoff until MaxRetries, then parked with their error.
type Dispatcher struct {
	db           *database.DB
	markers      domain.MarkerStore
	retry        RetryPolicy
	limiter      *rate.Limiter
	handlers     map[string][]FactHandler
	pollInterval time.Duration
	batchSize    int
	lease        time.Duration
	markerTTL    time.Duration
	logger       *zerolog.Logger
}

type DispatcherOptions struct {
	PollInterval time.Duration
	BatchSize    int
	Lease        time.Duration
	DeliveryRPS  float64
}

func NewDispatcher(db *database.DB, markers domain.MarkerStore, retry RetryPolicy, opts DispatcherOptions, logger *zerolog.Logger) *Dispatcher {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 20
	}
	if opts.Lease == 0 {
		opts.Lease = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.DeliveryRPS > 0 {
		burst := int(opts.DeliveryRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.DeliveryRPS), burst)
	}

	return &Dispatcher{
		db:           db,
		markers:      markers,
		retry:        retry,
		limiter:      limiter,
		handlers:     make(map[string][]FactHandler),
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		lease:        opts.Lease,
		markerTTL:    7 * 24 * time.Hour,
		logger:       logger,
	}
}

// Register subscribes a handler to a fact type.
func (d *Dispatcher) Register(factType string, handler FactHandler) {
	d.handlers[factType] = append(d.handlers[factType], handler)
}

// Start runs the polling loop until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Dur("poll_interval", d.pollInterval).Msg("outbox dispatcher started")
	defer d.logger.Info().Msg("outbox dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := d.RunOnce(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("dispatch cycle failed")
		}
		if processed == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.pollInterval):
			}
		}
	}
}

// RunOnce claims and processes one batch. It returns how many messages it
// handled, so callers can idle when the outbox is drained.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	messages, err := d.db.ClaimOutboxMessages(ctx, d.batchSize, d.retry.MaxRetries, d.lease)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}

	for _, msg := range messages {
		if err := d.limiter.Wait(ctx); err != nil {
			return len(messages), err
		}
		d.process(ctx, msg)
	}
	return len(messages), nil
}

func (d *Dispatcher) process(ctx context.Context, msg *domain.OutboxMessage) {
	if err := d.deliver(ctx, msg); err != nil {
		d.retryOrPark(ctx, msg, err)
		return
	}

	if err := d.db.MarkOutboxProcessed(ctx, msg.ID); err != nil {
		// Lost the mark to a competing dispatcher; the message was still
		// delivered only once from its perspective.
		d.logger.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("mark processed failed")
		return
	}
	metrics.IncOutboxDelivery("delivered")
}

func (d *Dispatcher) deliver(ctx context.Context, msg *domain.OutboxMessage) error {
	handlers := d.handlers[msg.Type]
	if len(handlers) == 0 {
		d.logger.Debug().Str("type", msg.Type).Msg("no handlers registered for fact type")
		return nil
	}

	for _, handler := range handlers {
		key := fmt.Sprintf("delivered:%s:%s", handler.Name(), msg.ID)

		if d.markers != nil {
			seen, err := d.markers.Seen(ctx, key)
			if err == nil && seen {
				metrics.IncOutboxDelivery("skipped")
				continue
			}
		}

		if err := handler.Handle(ctx, msg); err != nil {
			return fmt.Errorf("handler %s: %w", handler.Name(), err)
		}

		if d.markers != nil {
			if err := d.markers.Mark(ctx, key, d.markerTTL); err != nil {
				d.logger.Warn().Err(err).Str("key", key).Msg("delivery marker write failed")
			}
		}
	}
	return nil
}

func (d *Dispatcher) retryOrPark(ctx context.Context, msg *domain.OutboxMessage, cause error) {
	attempt := msg.Attempts + 1
	if attempt >= d.retry.MaxRetries {
		if err := d.db.MarkOutboxFailed(ctx, msg.ID, cause.Error(), nil); err != nil {
			d.logger.Error().Err(err).Str("message_id", msg.ID.String()).Msg("park message failed")
		}
		metrics.IncOutboxDelivery("failed")
		d.logger.Error().Err(cause).
			Str("message_id", msg.ID.String()).
			Str("type", msg.Type).
			Int("attempts", attempt).
			Msg("outbox message exhausted retries")
		return
	}

	next := time.Now().UTC().Add(d.retry.NextDelay(attempt))
	if err := d.db.MarkOutboxFailed(ctx, msg.ID, cause.Error(), &next); err != nil {
		d.logger.Error().Err(err).Str("message_id", msg.ID.String()).Msg("schedule retry failed")
	}
	metrics.IncOutboxDelivery("retried")
	d.logger.Warn().Err(cause).
		Str("message_id", msg.ID.String()).
		Time("next_attempt_at", next).
		Msg("outbox delivery failed, retry scheduled")
}
