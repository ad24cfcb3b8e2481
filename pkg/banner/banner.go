package banner

import (
	"fmt"

	"hearthsync/pkg/config"
)

const banner = `
██╗  ██╗███████╗ █████╗ ██████╗ ████████╗██╗  ██╗███████╗██╗   ██╗███╗   ██╗ ██████╗
██║  ██║██╔════╝██╔══██╗██╔══██╗╚══██╔══╝██║  ██║██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
███████║█████╗  ███████║██████╔╝   ██║   ███████║███████╗ ╚████╔╝ ██║╚██╗██║██║
██╔══██║██╔══╝  ██╔══██║██╔══██╗   ██║   ██╔══██║╚════██║  ╚██╔╝  ██║╚██╗██║██║
██║  ██║███████╗██║  ██║██║  ██║   ██║   ██║  ██║███████║   ██║   ██║ ╚████║╚██████╔╝
╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
`

// Print renders the startup banner with the effective runtime config.
func Print(cfg *config.Config, addr, dbPath, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/posts                        - Register a post (backend)")
	fmt.Println("POST /v1/posts/{id}/reactions         - Apply a reaction")
	fmt.Println("POST /v1/posts/{id}/comments          - Add a comment")
	fmt.Println("GET  /v1/posts/{id}/engagement        - Engagement snapshot")
	fmt.Println("GET  /v1/feed/{room}?cursor=          - Room feed")
	fmt.Println("GET  /v1/rooms/{id}/stream            - Websocket event stream")

	fmt.Println("\n== Production? =================================================")
	if cfg != nil {
		if n := len(cfg.Security.APIKeys.Backend); n > 0 {
			fmt.Printf("- Backend API keys: OK (%d)\n", n)
		} else {
			fmt.Println("- Backend API keys: MISSING (required for post registration)")
		}
		if n := len(cfg.Security.APIKeys.Frontend); n > 0 {
			fmt.Printf("- Frontend API keys: OK (%d)\n", n)
		} else {
			fmt.Println("- Frontend API keys: MISSING (required for client access)")
		}
		if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
			fmt.Println("- TLS: configured")
		} else {
			fmt.Println("- TLS: unconfigured")
		}
		if cfg.Cache.Redis.Enabled {
			fmt.Printf("- Redis cache: %s\n", cfg.Cache.Redis.Addr)
		} else {
			fmt.Println("- Redis cache: disabled (memory tier only)")
		}
		if cfg.Sweep.Enabled {
			fmt.Printf("- Sweep: enabled (cron=%s)\n", cfg.Sweep.Cron)
		} else {
			fmt.Println("- Sweep: disabled")
		}
	}

	fmt.Println("\n== Logs: =================================================")
}
