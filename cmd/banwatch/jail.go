package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/banwatch/internal/fail2ban"
)

var jailCmd = &cobra.Command{
	Use:   "jail",
	Short: "Inspect and control jails",
}

var jailListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured jails",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)

		jails, err := client.Jails(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list jails: %w", err)
		}
		if len(jails) == 0 {
			fmt.Println("No jails configured")
			return nil
		}
		fmt.Println(strings.Join(jails, "\n"))
		return nil
	},
}

var jailConfigCmd = &cobra.Command{
	Use:   "config <jail>",
	Short: "Show a jail's configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)

		jc := client.JailConfig(context.Background(), args[0])
		fmt.Printf("bantime:  %s\n", jc.BanTime)
		fmt.Printf("findtime: %s\n", jc.FindTime)
		fmt.Printf("maxretry: %s\n", jc.MaxRetry)
		fmt.Printf("logpath:  %s\n", jc.LogPath)
		fmt.Printf("backend:  %s\n", jc.Backend)
		return nil
	},
}

var jailStartCmd = &cobra.Command{
	Use:   "start <jail>",
	Short: "Start a jail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)

		if err := client.StartJail(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to start jail %s: %w", args[0], err)
		}
		fmt.Printf("Started jail %s\n", args[0])
		return nil
	},
}

var jailStopCmd = &cobra.Command{
	Use:   "stop <jail>",
	Short: "Stop a jail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)

		if err := client.StopJail(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to stop jail %s: %w", args[0], err)
		}
		fmt.Printf("Stopped jail %s\n", args[0])
		return nil
	},
}

func init() {
	jailCmd.AddCommand(jailListCmd)
	jailCmd.AddCommand(jailConfigCmd)
	jailCmd.AddCommand(jailStartCmd)
	jailCmd.AddCommand(jailStopCmd)
}
