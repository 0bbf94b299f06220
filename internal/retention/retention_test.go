package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"huddle/pkg/config"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/stream"
)

func testEff(t *testing.T, maxAge time.Duration) config.EffectiveConfigResult {
	t.Helper()
	dir := t.TempDir()
	if err := store.Open(dir); err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.SetHub(stream.NewHub())
	t.Cleanup(func() {
		store.SetHub(nil)
		_ = store.Close()
	})
	cfg := &config.Config{}
	cfg.Server.DBPath = dir
	cfg.Retention = config.RetentionConfig{
		Enabled:   true,
		MaxAge:    config.Duration(maxAge),
		BatchSize: 100,
	}
	return config.EffectiveConfigResult{Config: cfg, DBPath: dir, Source: "config"}
}

func TestRunImmediatePurgesOldMessages(t *testing.T) {
	eff := testEff(t, 10*time.Millisecond)
	SetEffectiveConfig(eff)

	ref := store.Channel("general")
	old, _ := store.SaveMessage(ref, models.Message{Author: "alice", Text: "old"})
	time.Sleep(20 * time.Millisecond)

	if err := RunImmediate(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, _, err := store.GetMessage(old.ID); err == nil {
		t.Fatalf("expired message survived")
	}

	// a completed run leaves a marker and releases the lock
	if _, err := os.Stat(filepath.Join(retentionDir(eff), "last_run")); err != nil {
		t.Fatalf("missing last_run marker: %v", err)
	}
	if _, err := os.Stat(filepath.Join(retentionDir(eff), "lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file not released: %v", err)
	}
}

func TestRunSkipsWhenLocked(t *testing.T) {
	eff := testEff(t, time.Nanosecond)
	SetEffectiveConfig(eff)

	ref := store.Channel("general")
	msg, _ := store.SaveMessage(ref, models.Message{Author: "alice", Text: "held"})
	time.Sleep(time.Millisecond)

	path := retentionDir(eff)
	if err := os.MkdirAll(path, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lock := filepath.Join(path, "lock")
	if err := os.WriteFile(lock, nil, 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	defer os.Remove(lock)

	if err := RunImmediate(); err != nil {
		t.Fatalf("locked run should be a silent skip: %v", err)
	}
	if _, _, err := store.GetMessage(msg.ID); err != nil {
		t.Fatalf("message purged despite lock: %v", err)
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	eff := testEff(t, time.Hour)
	eff.Config.Retention.Cron = "not a cron"
	if _, err := Start(context.Background(), eff); err == nil {
		t.Fatalf("invalid cron accepted")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	eff := testEff(t, time.Hour)
	eff.Config.Retention.Enabled = false
	cancel, err := Start(context.Background(), eff)
	if err != nil {
		t.Fatalf("disabled start: %v", err)
	}
	cancel()
}
