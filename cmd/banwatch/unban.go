package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/banwatch/internal/fail2ban"
)

var unbanCmd = &cobra.Command{
	Use:   "unban <jail> <ip>",
	Short: "Unban an IP address in a jail",
	Long:  "Remove a ban for an IP address in the given jail via fail2ban.",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnban,
}

func runUnban(cmd *cobra.Command, args []string) error {
	jail, ip := args[0], args[1]
	client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)

	result, err := client.UnbanIP(context.Background(), jail, ip)
	if err != nil {
		return fmt.Errorf("failed to unban %s in %s: %w", ip, jail, err)
	}

	if result == fail2ban.AlreadyAbsent {
		fmt.Printf("%s was not banned in jail %s\n", ip, jail)
		return nil
	}

	fmt.Printf("Unbanned %s in jail %s\n", ip, jail)
	return nil
}
