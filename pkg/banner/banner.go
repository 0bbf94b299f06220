package banner

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"huddle/pkg/config"
	"huddle/pkg/store"
)

const banner = `
██╗  ██╗██╗   ██╗██████╗ ██████╗ ██╗     ███████╗
██║  ██║██║   ██║██╔══██╗██╔══██╗██║     ██╔════╝
███████║██║   ██║██║  ██║██║  ██║██║     █████╗
██╔══██║██║   ██║██║  ██║██║  ██║██║     ██╔══╝
██║  ██║╚██████╔╝██████╔╝██████╔╝███████╗███████╗
╚═╝  ╚═╝ ╚═════╝ ╚═════╝ ╚═════╝ ╚══════╝╚══════╝
`

// PrintWithEff prints the startup banner using an EffectiveConfigResult
// which carries the resolved config, addr, db path and source.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)
	if sz := store.DBSizeBytes(); sz > 0 {
		fmt.Printf("DB Size:  %s\n", humanize.Bytes(sz))
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/channels/general/messages' -d '{\"text\": \"hello\"}'")
	fmt.Println("curl 'http://<host>:<port>/v1/channels/general/messages?limit=50'")
	fmt.Println("curl 'http://<host>:<port>/v1/users/u1/unread'")
	fmt.Println("\n== Production? =================================================")

	be, fe, ak := 0, 0, 0
	var chans, mods int
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
		chans = len(eff.Config.Chat.Channels)
		mods = len(eff.Config.Chat.Moderators)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if chans > 0 {
		fmt.Printf("- Channels: %d configured\n", chans)
	} else {
		fmt.Println("- Channels: none configured (chat.channels)")
	}
	if mods > 0 {
		fmt.Printf("- Moderators: %d\n", mods)
	} else {
		fmt.Println("- Moderators: none (pins and mod-only channels disabled)")
	}

	retEnabled := eff.Config != nil && eff.Config.Retention.Enabled
	if retEnabled {
		if eff.Config.Retention.Cron != "" {
			fmt.Printf("- Retention: enabled (cron=%s)\n", eff.Config.Retention.Cron)
		} else {
			fmt.Println("- Retention: enabled")
		}
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
