package softlock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// RunSweeper removes expired locks on the given interval until ctx is done.
// This is a cleanliness job: acquire already treats expired rows as free.
func (mgr *Manager) RunSweeper(ctx context.Context, pool *pgxpool.Pool, interval time.Duration, log *logrus.Entry) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		removed, err := mgr.CleanExpired(ctx, pool)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if log != nil {
				log.WithError(err).Warn("softlock: sweep failed")
			}
			continue
		}
		if removed > 0 && log != nil {
			log.WithField("removed", removed).Debug("softlock: swept expired locks")
		}
	}
}
