package repository

import (
	"context"
	"sync/atomic"
	"time"

	"staybook/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverMarkerStore prefers the primary store and falls back to the
// secondary when the primary errors, probing for recovery once a minute.
// Markers written during a fallback window are not replayed to the primary;
// the dispatcher tolerates that because delivery is at-least-once anyway.
type FailoverMarkerStore struct {
	primary   domain.MarkerStore
	fallback  domain.MarkerStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

const recoveryProbeInterval = time.Minute

func NewFailoverMarkerStore(primary, fallback domain.MarkerStore, logger *zerolog.Logger) *FailoverMarkerStore {
	return &FailoverMarkerStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (f *FailoverMarkerStore) Seen(ctx context.Context, key string) (bool, error) {
	if f.primaryUsable() {
		seen, err := f.primary.Seen(ctx, key)
		if err == nil {
			f.recovered()
			return seen, nil
		}
		f.degrade(err)
	}
	return f.fallback.Seen(ctx, key)
}

func (f *FailoverMarkerStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if f.primaryUsable() {
		err := f.primary.Mark(ctx, key, ttl)
		if err == nil {
			f.recovered()
			return nil
		}
		f.degrade(err)
	}
	return f.fallback.Mark(ctx, key, ttl)
}

func (f *FailoverMarkerStore) primaryUsable() bool {
	if !f.isDown.Load() {
		return true
	}
	last := time.Unix(0, f.lastCheck.Load())
	return time.Since(last) > recoveryProbeInterval
}

func (f *FailoverMarkerStore) degrade(err error) {
	if !f.isDown.Load() {
		f.logger.Error().Err(err).Msg("primary marker store failed, falling back")
	}
	f.isDown.Store(true)
	f.lastCheck.Store(time.Now().UnixNano())
}

func (f *FailoverMarkerStore) recovered() {
	if f.isDown.Load() {
		f.logger.Info().Msg("primary marker store recovered")
		f.isDown.Store(false)
	}
}
