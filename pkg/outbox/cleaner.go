package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner prunes published entries past the retention window. Dead-letter
// rows are kept: they are the operator's queue and are only removed by hand.
type Cleaner struct {
	pool *pgxpool.Pool
	opts CleanerOptions
}

func NewCleaner(pool *pgxpool.Pool, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	opts.setDefaults()
	if opts.Logger == nil {
		opts.Logger = logrusNop()
	}
	return &Cleaner{pool: pool, opts: opts}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		removed, err := c.CleanOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).Warn("outbox: clean tick failed")
			continue
		}
		if removed > 0 {
			c.opts.Logger.WithField("removed", removed).Debug("outbox: pruned published entries")
		}
	}
}

func (c *Cleaner) CleanOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.opts.Retention)

	const q = `DELETE FROM ` + Table + `
		  WHERE status = '` + StatusPublished + `'
		    AND published_at < $1`

	tag, err := c.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
