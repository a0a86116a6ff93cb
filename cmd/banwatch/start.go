package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/banwatch/internal/daemon"
	"github.com/user/banwatch/internal/util"
	"github.com/user/banwatch/internal/web"
)

var (
	foreground   bool
	withWeb      bool
	startWebPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the banwatch daemon",
	Long:  "Start the banwatch daemon in the background to watch fail2ban.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&withWeb, "with-web", false,
		"Also start the JSON API server")
	startCmd.Flags().IntVar(&startWebPort, "web-port", 8080,
		"Port for the API server (when using --with-web)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("web-port") && cfg.WebPort > 0 {
		startWebPort = cfg.WebPort
	}

	// Check if already running
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if foreground {
		return runForeground()
	}

	return runDaemon()
}

func runForeground() error {
	fmt.Println("Starting banwatch in foreground mode...")

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Start API server if requested
	if withWeb {
		go func() {
			srv := web.NewServer(d, startWebPort)
			fmt.Printf("API server: http://localhost:%d\n", startWebPort)
			if err := srv.Start(); err != nil {
				util.Error("Web server error: %v", err)
			}
		}()
	}

	fmt.Println("Banwatch daemon started. Press Ctrl+C to stop.")

	// Wait for daemon to finish
	d.Wait()

	return nil
}

func runDaemon() error {
	// Re-execute self in background
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Prepare arguments
	args := []string{"start", "--foreground"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if withWeb {
		args = append(args, "--with-web", "--web-port", fmt.Sprintf("%d", startWebPort))
	}

	// Create log file for daemon output
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	// Start background process
	procAttr := &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{nil, logFile, logFile},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	proc, err := os.StartProcess(executable, append([]string{executable}, args...), procAttr)
	if err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	// Detach from parent
	if err := proc.Release(); err != nil {
		util.Warn("Failed to release process: %v", err)
	}

	fmt.Printf("Banwatch daemon started (PID %d)\n", proc.Pid)
	fmt.Printf("Logs: %s\n", cfg.LogFile)
	if withWeb {
		fmt.Printf("API server: http://localhost:%d\n", startWebPort)
	}

	return nil
}
