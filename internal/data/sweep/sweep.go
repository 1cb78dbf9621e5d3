// Package sweep periodically purges expired KV entries.
package sweep

import (
	"context"
	"time"

	"github.com/hay-kot/bell/internal/core/logging"
	"github.com/hay-kot/bell/internal/data/stores"
)

// Sweeper deletes expired entries and reports how many it removed.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables sweeping and Run returns immediately.
func Run(ctx context.Context, s Sweeper, interval time.Duration) {
	log := logging.Component("sweep")

	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("kv sweep disabled, interval must be positive")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			switch {
			case stores.IsBusyError(err):
				// Another bell process holds the write lock; try next tick.
				log.Debug().Err(err).Msg("kv sweep skipped, database busy")
				continue
			case err != nil:
				log.Warn().Err(err).Msg("kv sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("kv sweep")
			}
		}
	}
}
