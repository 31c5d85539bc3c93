package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweep invokes the quota sweep on a fixed interval until the context is
// cancelled. One user's failure never aborts a pass.
func RunSweep(ctx context.Context, quota *QuotaService, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := quota.SweepExpired(ctx)
			if err != nil {
				logger.Error("quota sweep failed", zap.Error(err))
				continue
			}
			if count > 0 {
				logger.Info("quota sweep completed", zap.Int("reset", count))
			}
		}
	}
}
