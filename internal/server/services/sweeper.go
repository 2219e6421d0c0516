package services

import (
	"context"
	"time"

	"github.com/yerakh/cloudvault/internal/logging"
)

// Sweeper periodically removes stale unconfirmed upload reservations.
type Sweeper struct {
	storage  *Storage
	interval time.Duration
	maxAge   time.Duration
	logger   logging.Logger
}

func NewSweeper(storage *Storage, interval, maxAge time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		storage:  storage,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With("module", "sweeper"),
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.storage.SweepStaleUploads(ctx, s.maxAge); err != nil {
		s.logger.Error(ctx, "stale upload sweep failed", "error", err.Error())
	}
}
