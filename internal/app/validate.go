package app

import (
	"fmt"
	"os"

	"huddle/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	// DB path must be present
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, HUDDLE_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// every configured moderator must be a non-empty id
	for _, m := range eff.Config.Chat.Moderators {
		if m == "" {
			return fmt.Errorf("chat.moderators contains an empty user id")
		}
	}

	// channel ids must be unique; duplicated ids would split one stream
	// across two config entries
	seen := map[string]struct{}{}
	for _, ch := range eff.Config.Chat.Channels {
		if ch.ID == "" {
			return fmt.Errorf("chat.channels contains an entry with an empty id")
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("duplicate channel id in chat.channels: %s", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}

	return nil
}
