package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/banwatch/internal/daemon"
	"github.com/user/banwatch/internal/fail2ban"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and fail2ban status",
	Long:  "Show the current status of the banwatch daemon and the fail2ban server.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("86"))

	runningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	stoppedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	// Check daemon status
	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("Banwatch Status"))
	fmt.Println()

	// Daemon status
	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	// Try to read status file for more details
	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		fmt.Print(labelStyle.Render("Started: "))
		fmt.Println(valueStyle.Render(sf.StartTime))

		fmt.Print(labelStyle.Render("Uptime: "))
		fmt.Println(valueStyle.Render(sf.Uptime))

		fmt.Print(labelStyle.Render("Banned: "))
		fmt.Println(valueStyle.Render(fmt.Sprintf("%d addresses in %d jails", sf.BannedCount, sf.JailCount)))

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Jobs"))

			for _, job := range sf.Jobs {
				statusStr := "idle"
				if job.Running {
					statusStr = "running"
				}
				fmt.Printf("  %s: %s (last: %s, errors: %d)\n",
					labelStyle.Render(job.Name),
					valueStyle.Render(statusStr),
					job.LastRun.Format("15:04:05"),
					job.ErrorCount)
			}
		}
	}

	// Query the fail2ban server directly
	client := fail2ban.NewClient(cfg.ClientPath, cfg.CommandTimeout)
	ctx := context.Background()

	fmt.Println()
	fmt.Println(titleStyle.Render("Fail2ban Server"))

	server := client.ServerStatus(ctx)
	fmt.Print(labelStyle.Render("Server: "))
	if !server.Running {
		fmt.Println(stoppedStyle.Render("Unreachable"))
		return nil
	}
	fmt.Println(runningStyle.Render("Running"))

	if server.Version != "" {
		fmt.Printf("  %s %s\n",
			labelStyle.Render("Version:"),
			valueStyle.Render(server.Version))
	}
	fmt.Printf("  %s %s\n",
		labelStyle.Render("Jails:"),
		valueStyle.Render(fmt.Sprintf("%d active / %d total", server.ActiveJails, server.TotalJails)))

	if statuses, err := client.AllJailStatuses(ctx); err == nil && len(statuses) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Jails"))

		for _, st := range statuses {
			if st.Error != "" {
				fmt.Printf("  %s %s\n",
					labelStyle.Render(st.Name+":"),
					stoppedStyle.Render("error: "+st.Error))
				continue
			}
			fmt.Printf("  %s %s\n",
				labelStyle.Render(st.Name+":"),
				valueStyle.Render(fmt.Sprintf("%d banned (%d total), %d failed",
					st.CurrentlyBanned, st.TotalBanned, st.CurrentlyFailed)))
			if len(st.BannedIPs) > 0 {
				fmt.Printf("    %s\n", strings.Join(st.BannedIPs, " "))
			}
		}
	}

	return nil
}
