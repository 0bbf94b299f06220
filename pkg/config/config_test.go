package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  address: "127.0.0.1"
  port: 9090
  db_path: "/tmp/huddle-test"
chat:
  channels:
    - id: general
      name: General
    - id: modhq
      name: Mod HQ
      mod_only: true
    - id: splits
      name: Splits
      read_only: true
  moderators: [mod1, mod2]
  pin_limit: 4
  max_message_bytes: 64KB
  xp_per_message: 3
retention:
  enabled: true
  cron: "0 2 * * *"
  max_age: 720h
  batch_size: 250
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadParsesChatAndRetention(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if len(cfg.Chat.Channels) != 3 {
		t.Fatalf("channels = %d", len(cfg.Chat.Channels))
	}
	ch, ok := cfg.Chat.Channel("modhq")
	if !ok || !ch.ModOnly {
		t.Fatalf("modhq lookup: %+v ok=%v", ch, ok)
	}
	if _, ok := cfg.Chat.Channel("nope"); ok {
		t.Fatalf("unknown channel resolved")
	}
	if !cfg.Chat.IsModerator("mod2") || cfg.Chat.IsModerator("alice") {
		t.Fatalf("moderator lookup broken")
	}
	if cfg.Chat.PinLimitOrDefault() != 4 {
		t.Fatalf("pin limit = %d", cfg.Chat.PinLimitOrDefault())
	}
	if cfg.Chat.MaxMessageBytes.Int64() != 64000 {
		t.Fatalf("max message bytes = %d", cfg.Chat.MaxMessageBytes.Int64())
	}
	if cfg.Chat.XPPerMessageOrDefault() != 3 {
		t.Fatalf("xp per message = %d", cfg.Chat.XPPerMessageOrDefault())
	}
	if cfg.Retention.MaxAge.Duration() != 720*time.Hour {
		t.Fatalf("max age = %v", cfg.Retention.MaxAge.Duration())
	}
	if cfg.Retention.BatchSize != 250 {
		t.Fatalf("batch size = %d", cfg.Retention.BatchSize)
	}
}

func TestDefaultsWhenUnset(t *testing.T) {
	var c ChatConfig
	if c.PinLimitOrDefault() != 5 {
		t.Fatalf("default pin limit = %d", c.PinLimitOrDefault())
	}
	if c.XPPerMessageOrDefault() != 2 {
		t.Fatalf("default xp = %d", c.XPPerMessageOrDefault())
	}
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fileCfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	envCfg := &Config{}
	envCfg.Server.Address = "0.0.0.0"
	envCfg.Server.Port = 7070
	envCfg.Server.DBPath = "/tmp/env-db"

	// explicit --config wins over everything
	eff, err := LoadEffectiveConfig(Flags{Config: "x", Set: map[string]bool{"config": true}}, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if eff.Source != "config" || eff.Addr != "127.0.0.1:9090" {
		t.Fatalf("config precedence: %+v", eff)
	}

	// explicit flags win next, chat settings carried from the file
	eff, err = LoadEffectiveConfig(Flags{Addr: ":6060", DB: "/tmp/flag-db", Set: map[string]bool{"addr": true, "db": true}}, fileCfg, true, envCfg, EnvResult{})
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if eff.Source != "flags" || eff.Addr != ":6060" || eff.DBPath != "/tmp/flag-db" {
		t.Fatalf("flags precedence: %+v", eff)
	}
	if len(eff.Config.Chat.Channels) != 3 {
		t.Fatalf("chat config not carried into flags source")
	}

	// env is the fallback when no flags and no file
	eff, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if eff.Source != "env" || eff.DBPath != "/tmp/env-db" {
		t.Fatalf("env fallback: %+v", eff)
	}

	// --config pointing at a missing file is fatal
	if _, err := LoadEffectiveConfig(Flags{Config: "missing.yaml", Set: map[string]bool{"config": true}}, &Config{}, false, envCfg, EnvResult{}); err == nil {
		t.Fatalf("missing explicit config should error")
	}
}

func TestSizeBytesAndDurationParsing(t *testing.T) {
	cfg, err := Load(writeConfig(t, "chat:\n  max_message_bytes: 2048\nretention:\n  max_age: 3600\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chat.MaxMessageBytes.Int64() != 2048 {
		t.Fatalf("plain integer size = %d", cfg.Chat.MaxMessageBytes.Int64())
	}
	if cfg.Retention.MaxAge.Duration() != time.Hour {
		t.Fatalf("numeric seconds duration = %v", cfg.Retention.MaxAge.Duration())
	}
}
