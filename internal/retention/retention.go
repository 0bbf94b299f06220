package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/store"
)

var storedEff *config.EffectiveConfigResult

// SetEffectiveConfig stores the effective config so tests (or admin
// triggers) can invoke retention runs on-demand.
func SetEffectiveConfig(eff config.EffectiveConfigResult) {
	storedEff = &eff
}

// RunImmediate triggers a single retention run using the stored effective
// config.
func RunImmediate() error {
	if storedEff == nil {
		return fmt.Errorf("no effective config registered for retention run")
	}
	path := retentionDir(*storedEff)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return err
	}
	return runOnce(context.Background(), *storedEff, path)
}

func retentionDir(eff config.EffectiveConfigResult) string {
	return filepath.Join(eff.DBPath, "state", "retention")
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	ret := eff.Config.Retention

	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	// Stable folder under the DB path for the lock and run markers.
	path := retentionDir(eff)
	if err := os.MkdirAll(path, 0o700); err != nil {
		logger.Error("retention_path_create_failed", "path", path, "error", err)
		return nil, err
	}

	// map empty cron to default daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_age", ret.MaxAge.Duration().String(), "path", path)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, eff, path, cronExpr)
	logger.Info("retention_scheduler_started", "path", path)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, eff config.EffectiveConfigResult, path, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := runOnce(ctx, eff, path); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce performs one retention pass: purge messages past max_age and
// drop DM cursors whose thread has emptied out. A lock file prevents
// overlapping runs; a marker file records the last completed run.
func runOnce(_ context.Context, eff config.EffectiveConfigResult, path string) error {
	ret := eff.Config.Retention
	maxAge := ret.MaxAge.Duration()
	if maxAge <= 0 {
		logger.Warn("retention_no_max_age")
		return nil
	}

	lock := filepath.Join(path, "lock")
	f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		logger.Warn("retention_run_skipped_locked", "path", lock)
		return nil
	}
	_ = f.Close()
	defer func() { _ = os.Remove(lock) }()

	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()
	start := time.Now()
	deleted, err := store.PurgeMessagesBefore(cutoff, ret.BatchSize, ret.DryRun)
	if err != nil {
		return err
	}
	cursors, err := store.PurgeOrphanDMCursors(ret.DryRun)
	if err != nil {
		return err
	}

	logger.AuditInfo("retention_run",
		"deleted", deleted,
		"dm_cursors_removed", cursors,
		"dry_run", ret.DryRun,
		"took", time.Since(start).String(),
	)

	marker := filepath.Join(path, "last_run")
	_ = os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)), 0o600)
	return nil
}
