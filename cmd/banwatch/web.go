package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/banwatch/internal/daemon"
	"github.com/user/banwatch/internal/web"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Run the pipeline with the JSON API in the foreground",
	Long: `Run the monitoring pipeline in the foreground and serve its state
over a JSON API.

The API provides:
- The aggregated snapshot (bans, jails, countries, SSH statistics)
- Recent fail2ban log lines
- Ban, unban and reload controls
- Country lookups for single addresses

Examples:
  banwatch web
  banwatch web --port 8080`,
	RunE: runWebCmd,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 8080, "API server port")
}

func runWebCmd(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("port") && cfg.WebPort > 0 {
		webPort = cfg.WebPort
	}

	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		return fmt.Errorf("daemon is already running (PID %d), stop it first", pid)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("Starting API server on http://localhost:%d\n", webPort)
	fmt.Println("Press Ctrl+C to stop")

	srv := web.NewServer(d, webPort)
	return srv.Start()
}
