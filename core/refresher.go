package core

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
)

type RefreshFunc func(ctx context.Context) error

// PeriodicRefresher calls refreshFn right away and then once per interval until the
// context is done
type PeriodicRefresher struct {
	interval  time.Duration
	refreshFn RefreshFunc
	logger    hclog.Logger
}

func NewPeriodicRefresher(interval time.Duration, refreshFn RefreshFunc, logger hclog.Logger) (*PeriodicRefresher, error) {
	if interval <= 0 {
		return nil, errors.New("refresh interval must be positive")
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &PeriodicRefresher{
		interval:  interval,
		refreshFn: refreshFn,
		logger:    logger,
	}, nil
}

func (r *PeriodicRefresher) Run(ctx context.Context) {
	r.logger.Info("Refreshing periodically", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.refreshFn(ctx); err != nil {
			r.logger.Warn("Refresh failed", "err", err)
		} else {
			r.logger.Debug("Refresh completed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
