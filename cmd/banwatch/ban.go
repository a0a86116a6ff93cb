package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/banwatch/internal/fail2ban"
)

var banTime time.Duration

var banCmd = &cobra.Command{
	Use:   "ban <jail> <ip>",
	Short: "Ban an IP address in a jail",
	Long: `Ban an IP address in the given jail via fail2ban.

Examples:
  banwatch ban sshd 203.0.113.5
  banwatch ban sshd 203.0.113.5 --bantime 1h
  banwatch ban sshd 203.0.113.5 --bantime -1s   (permanent)`,
	Args: cobra.ExactArgs(2),
	RunE: runBan,
}

func init() {
	banCmd.Flags().DurationVar(&banTime, "bantime", 0,
		"Ban duration (0 uses the jail default, negative bans permanently)")
}

func runBan(cmd *cobra.Command, args []string) error {
	jail, ip := args[0], args[1]
	client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)

	var err error
	if banTime != 0 {
		err = client.BanIPFor(context.Background(), jail, ip, banTime)
	} else {
		err = client.BanIP(context.Background(), jail, ip)
	}
	if err != nil {
		return fmt.Errorf("failed to ban %s in %s: %w", ip, jail, err)
	}

	fmt.Printf("Banned %s in jail %s\n", ip, jail)
	return nil
}
