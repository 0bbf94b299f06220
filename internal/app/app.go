package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/joho/godotenv"

	"huddle/internal/retention"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/store"
	"huddle/pkg/stream"
	"huddle/pkg/telemetry"
	"huddle/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	hub       *stream.Hub
	srv       *http.Server
	retCancel context.CancelFunc
}

// New initializes resources that do not require a running context (DB,
// snapshot hub, validation rules, runtime keys). It does not start the
// HTTP server; call Run to start it and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// validation rules
	initValidation(eff)

	// open store and attach the snapshot hub; from here on every store
	// mutation fans out full-state snapshots to subscribers
	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}
	hub := stream.NewHub()
	store.SetHub(hub)

	stateDir := filepath.Join(eff.DBPath, "state")
	telemetry.SetStateDir(stateDir)
	if err := logger.AttachAuditFileSink(filepath.Join(stateDir, "audit")); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, hub: hub}
	return a, nil
}

// Run starts the retention scheduler (if enabled) and the HTTP server,
// and blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	retention.SetEffectiveConfig(a.eff)
	cancel, err := retention.Start(ctx, a.eff)
	if err != nil {
		return err
	}
	a.retCancel = cancel

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.retCancel != nil {
		a.retCancel()
	}
	if a.srv != nil {
		_ = a.srv.Close()
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}

// initValidation builds message validation rules from config.
func initValidation(eff config.EffectiveConfigResult) {
	vr := validation.Rules{}
	if eff.Config != nil {
		vr.MaxTextBytes = int(eff.Config.Chat.MaxMessageBytes.Int64())
	}
	validation.SetRules(vr)
}
