package audit

import (
	"context"
	"time"

	"grimm.is/speedctl/internal/logging"
)

// StartPruner prunes immediately and then every interval until ctx is done.
func (s *Store) StartPruner(ctx context.Context, interval time.Duration, logger *logging.Logger) {
	if logger == nil {
		logger = logging.WithComponent("audit")
	}

	prune := func() {
		n, err := s.Prune()
		if err != nil {
			logger.Warn("Audit prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("Pruned audit records", "count", n, "retention_days", s.retentionDays)
		}
	}

	go func() {
		prune()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prune()
			}
		}
	}()
}
