// Package sweep periodically recomputes engagement snapshots so warmth
// decay stays current even for posts that stopped receiving mutations.
package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"hearthsync/pkg/config"
	"hearthsync/pkg/gateway"
	"hearthsync/pkg/logger"
	"hearthsync/pkg/state"
	"hearthsync/pkg/store"
)

// Start starts the sweep scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config, gw *gateway.Gateway) (context.CancelFunc, error) {
	sw := cfg.Sweep

	if !sw.Enabled {
		logger.Info("sweep_disabled")
		return func() {}, nil
	}

	sweepPath := state.PathsVar.Sweep
	if err := os.MkdirAll(sweepPath, 0o700); err != nil {
		logger.Error("sweep_path_create_failed", "path", sweepPath, "error", err)
		return nil, err
	}

	cronExpr := sw.Cron
	if cronExpr == "" {
		cronExpr = "*/10 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweep_invalid_cron", "cron", sw.Cron)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", sw.Cron)
	}

	logger.Info("sweep_enabled", "cron", cronExpr, "batch", sw.BatchSize, "dry_run", sw.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, gw, sweepPath, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, cfg *config.Config, gw *gateway.Gateway, sweepPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, cfg, gw, sweepPath); err != nil {
				logger.Error("sweep_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		}
	}
}

// RunOnce walks every registered post and recomputes its snapshot. Each
// recompute takes the post's lock, so a sweep never races a live
// mutation; batches yield between posts to keep latency flat.
func RunOnce(ctx context.Context, cfg *config.Config, gw *gateway.Gateway, sweepPath string) error {
	started := time.Now()
	ids, err := store.ListPostIDs()
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	batch := cfg.Sweep.BatchSize
	if batch <= 0 {
		batch = 100
	}

	var swept, failed int
	for i, id := range ids {
		select {
		case <-ctx.Done():
			logger.Info("sweep_canceled", "swept", swept)
			return ctx.Err()
		default:
		}
		if cfg.Sweep.DryRun {
			swept++
			continue
		}
		if _, err := gw.Recompute(ctx, id); err != nil {
			failed++
			logger.Warn("sweep_recompute_failed", "post", id, "error", err.Error())
			continue
		}
		swept++
		if (i+1)%batch == 0 {
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	writeMarker(sweepPath, started, swept, failed)
	logger.Info("sweep_complete", "posts", len(ids), "swept", swept, "failed", failed,
		"dry_run", cfg.Sweep.DryRun, "elapsed", time.Since(started).String())
	return nil
}

// writeMarker records the last completed run for operator inspection.
func writeMarker(sweepPath string, started time.Time, swept, failed int) {
	if sweepPath == "" {
		return
	}
	line := fmt.Sprintf("started=%s swept=%d failed=%d\n", started.UTC().Format(time.RFC3339), swept, failed)
	if err := os.WriteFile(filepath.Join(sweepPath, "last_run"), []byte(line), 0o600); err != nil {
		logger.Warn("sweep_marker_write_failed", "error", err.Error())
	}
}
