package app

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"deskchat/pkg/logger"
)

// startResync starts the periodic notification re-fetch when enabled. The
// transport replays nothing it missed, so a cron-driven refresh bounds
// how stale the feed can get if a reconnect hook ever loses the race.
func (a *App) startResync(ctx context.Context) error {
	if !a.cfg.Resync.Enabled {
		return nil
	}
	cronExpr := a.cfg.Resync.Cron
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("resync_invalid_cron", "cron", cronExpr)
		return fmt.Errorf("invalid resync cron expression: %s", cronExpr)
	}
	logger.Info("resync_enabled", "cron", cronExpr)
	go a.runResync(ctx, cronExpr)
	return nil
}

// runResync computes the next tick for the cron expression and sleeps
// until then.
func (a *App) runResync(ctx context.Context, cronExpr string) {
	for {
		next, err := gronx.NextTick(cronExpr, false)
		if err != nil {
			logger.Error("resync_next_tick_failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("resync_stopping")
			return
		case <-time.After(time.Until(next)):
		}
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := a.feed.Refresh(rctx); err != nil {
			logger.Warn("resync_failed", "error", err)
		} else {
			logger.Debug("resync_done", "unread", a.feed.Unread())
		}
		cancel()
	}
}
