package banner

import (
	"fmt"

	"deskchat/pkg/config"
)

const banner = `
██████╗ ███████╗███████╗██╗  ██╗ ██████╗██╗  ██╗ █████╗ ████████╗
██╔══██╗██╔════╝██╔════╝██║ ██╔╝██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██║  ██║█████╗  ███████╗█████╔╝ ██║     ███████║███████║   ██║
██║  ██║██╔══╝  ╚════██║██╔═██╗ ██║     ██╔══██║██╔══██║   ██║
██████╔╝███████╗███████║██║  ██╗╚██████╗██║  ██║██║  ██║   ██║
╚═════╝ ╚══════╝╚══════╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// Print renders the startup banner for the daemon.
func Print(cfg *config.Config, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s\n", cfg.Addr())
	fmt.Printf("API:       %s\n", cfg.API.Origin)
	fmt.Printf("State:     %s\n", cfg.Daemon.StateDir)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config:    %s\n", source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET /healthz - liveness")
	fmt.Println("GET /readyz  - transport connected and state store open")
	fmt.Println("GET /metrics - prometheus metrics")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://localhost%s/readyz'\n", cfg.Addr())
	fmt.Printf("curl 'http://localhost%s/metrics'\n", cfg.Addr())
}

// PrintHub renders the startup banner for the dev hub.
func PrintHub(cfg *config.Config, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Hub ========================================================")
	fmt.Printf("Listen:    %s\n", cfg.HubAddr())
	fmt.Printf("DB Path:   %s\n", cfg.Hub.DBPath)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config:    %s\n", source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET   /app/{key} - realtime websocket")
	fmt.Println("POST  /api/broadcasting/auth - private channel auth")
	fmt.Println("GET   /api/tickets/{ticket}/chat/messages - list messages")
	fmt.Println("POST  /api/tickets/{ticket}/chat/messages - send message")
	fmt.Println("POST  /api/tickets/{ticket}/chat/messages/read - mark read")
	fmt.Println("GET   /api/notifications - list notifications")
	fmt.Println("GET   /docs - OpenAPI docs")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -H 'Authorization: Bearer <token>' 'http://localhost%s/api/notifications'\n", cfg.HubAddr())
}
