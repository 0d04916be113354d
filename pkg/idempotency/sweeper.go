package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// RunSweeper deletes expired records on the given interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, pool *pgxpool.Pool, interval time.Duration, log *logrus.Entry) error {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		removed, err := s.Sweep(ctx, pool)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if log != nil {
				log.WithError(err).Warn("idempotency: sweep failed")
			}
			continue
		}
		if removed > 0 && log != nil {
			log.WithField("removed", removed).Debug("idempotency: swept expired records")
		}
	}
}
