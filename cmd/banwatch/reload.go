package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/banwatch/internal/fail2ban"
)

var reloadCmd = &cobra.Command{
	Use:   "reload [jail]",
	Short: "Reload the fail2ban configuration",
	Long:  "Reload the whole fail2ban configuration, or a single jail when one is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReload,
}

func runReload(cmd *cobra.Command, args []string) error {
	client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)

	if len(args) == 1 {
		if err := client.ReloadJail(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to reload jail %s: %w", args[0], err)
		}
		fmt.Printf("Reloaded jail %s\n", args[0])
		return nil
	}

	if err := client.Reload(context.Background()); err != nil {
		return fmt.Errorf("failed to reload fail2ban: %w", err)
	}

	fmt.Println("Reloaded fail2ban configuration")
	return nil
}
